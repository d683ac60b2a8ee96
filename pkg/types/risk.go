package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BreakerLevel is the circuit-breaker state.
type BreakerLevel int

// Breaker levels in increasing severity.
const (
	LevelNormal BreakerLevel = iota
	LevelWarning
	LevelCaution
	LevelHalt
)

func (l BreakerLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCaution:
		return "caution"
	case LevelHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// MarshalText renders the level by name.
func (l BreakerLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// RiskLimits are the configured risk bounds.
type RiskLimits struct {
	MaxDailyLoss           decimal.Decimal
	MaxDailyExposure       decimal.Decimal
	MaxPositionSize        decimal.Decimal
	MaxConcurrentPositions int
	MaxConsecutiveFailures int
	WarningThreshold       decimal.Decimal
	CriticalThreshold      decimal.Decimal
	CautionSizeFactor      decimal.Decimal
	CautionReject          bool
	Cooldown               time.Duration
}

// CircuitBreakerState is a read-only snapshot of the breaker.
type CircuitBreakerState struct {
	Level               BreakerLevel    `json:"level"`
	Reason              string          `json:"reason"`
	TriggeredAt         time.Time       `json:"triggered_at,omitzero"`
	CooldownUntil       time.Time       `json:"cooldown_until,omitzero"`
	CooldownRemaining   time.Duration   `json:"cooldown_remaining_ns"`
	DailyPnL            decimal.Decimal `json:"daily_pnl"`
	DailyExposure       decimal.Decimal `json:"daily_exposure"`
	TradeCount          int             `json:"trade_count"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	OpenPositions       int             `json:"open_positions"`
	Day                 string          `json:"day"`
}

// RiskEventType classifies an audit event.
type RiskEventType string

// Risk event types.
const (
	RiskEventLevelChange RiskEventType = "level_change"
	RiskEventDailyReset  RiskEventType = "daily_reset"
)

// RiskEvent is an audit record of a breaker transition or a daily reset.
type RiskEvent struct {
	ID        string
	Type      RiskEventType
	From      BreakerLevel
	To        BreakerLevel
	Reason    string
	DailyPnL  decimal.Decimal
	Exposure  decimal.Decimal
	CreatedAt time.Time
}

// DailyStats is the per-day trade summary. P&L is not stored here; it is
// always summed from the ledger.
type DailyStats struct {
	Day        string
	Exposure   decimal.Decimal
	TradeCount int
	Failures   int
}

// DayKey formats t as a UTC calendar day.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// DayStart returns UTC midnight of t's day.
func DayStart(t time.Time) time.Time {
	u := t.UTC()

	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
