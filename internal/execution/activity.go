package execution

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityKind distinguishes entries of the recent-activity feed.
type ActivityKind string

// Activity kinds.
const (
	ActivitySignal ActivityKind = "signal"
	ActivityOrder  ActivityKind = "order"
)

// Activity is one entry of the recent-activity feed.
type Activity struct {
	Kind     ActivityKind    `json:"kind"`
	MarketID string          `json:"market_id"`
	ID       string          `json:"id"`
	Detail   string          `json:"detail"`
	Shares   decimal.Decimal `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	At       time.Time       `json:"at"`
}

// activityLog is a fixed-size ring of recent signals and orders.
type activityLog struct {
	mu      sync.Mutex
	entries []Activity
	next    int
	full    bool
}

func newActivityLog(size int) *activityLog {
	if size <= 0 {
		size = 100
	}

	return &activityLog{entries: make([]Activity, size)}
}

func (l *activityLog) add(a Activity) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = a
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// recent returns up to limit entries, newest first.
func (l *activityLog) recent(limit int) []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.next
	if l.full {
		count = len(l.entries)
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	out := make([]Activity, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}

	return out
}
