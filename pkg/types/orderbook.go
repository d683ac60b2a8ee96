package types

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// OrderbookMessage represents a book message from the market WebSocket.
type OrderbookMessage struct {
	EventType string       `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp int64        `json:"-"` // Parsed from string via UnmarshalJSON
	Hash      string       `json:"hash,omitempty"`
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`
}

// UnmarshalJSON custom unmarshaler to handle string timestamp.
func (o *OrderbookMessage) UnmarshalJSON(data []byte) error {
	type Alias OrderbookMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(o),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	timestamp, err := parseMillis(aux.TimestampStr)
	if err != nil {
		return err
	}
	o.Timestamp = timestamp

	return nil
}

// PriceChangeMessage carries level deltas for one or more assets.
type PriceChangeMessage struct {
	EventType    string        `json:"event_type"`
	Market       string        `json:"market"`
	Timestamp    int64         `json:"-"`
	PriceChanges []PriceChange `json:"price_changes"`
}

// PriceChange is a single level update. Size "0" removes the level.
type PriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"` // BUY updates bids, SELL updates asks
	BestBid string `json:"best_bid,omitempty"`
	BestAsk string `json:"best_ask,omitempty"`
}

// UnmarshalJSON custom unmarshaler to handle string timestamp.
func (p *PriceChangeMessage) UnmarshalJSON(data []byte) error {
	type Alias PriceChangeMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	timestamp, err := parseMillis(aux.TimestampStr)
	if err != nil {
		return err
	}
	p.Timestamp = timestamp

	return nil
}

func parseMillis(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	return strconv.ParseInt(s, 10, 64)
}

// MarketEvent is one decoded market-channel message. Exactly one of Book
// and PriceChange is set.
type MarketEvent struct {
	Book        *OrderbookMessage
	PriceChange *PriceChangeMessage
	ReceivedAt  time.Time
}

// EventType returns the wire event type.
func (e *MarketEvent) EventType() string {
	switch {
	case e.Book != nil:
		return e.Book.EventType
	case e.PriceChange != nil:
		return e.PriceChange.EventType
	default:
		return ""
	}
}

// PriceLevel is the wire form of a book level.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Level is a parsed book level.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ParseLevels converts wire levels, skipping malformed and empty ones.
func ParseLevels(levels []PriceLevel) []Level {
	out := make([]Level, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil || !size.IsPositive() {
			continue
		}
		out = append(out, Level{Price: price, Size: size})
	}

	return out
}

// OrderBook holds the full depth for one outcome token.
// Bids are sorted descending by price, asks ascending.
type OrderBook struct {
	TokenID   string
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

// NewOrderBook builds a book with sorted copies of the given levels.
func NewOrderBook(tokenID string, bids, asks []Level, ts time.Time) *OrderBook {
	b := &OrderBook{
		TokenID:   tokenID,
		Bids:      append([]Level(nil), bids...),
		Asks:      append([]Level(nil), asks...),
		Timestamp: ts,
	}
	b.Sort()

	return b
}

// Sort restores level ordering.
func (b *OrderBook) Sort() {
	sort.SliceStable(b.Bids, func(i, j int) bool { return b.Bids[i].Price.GreaterThan(b.Bids[j].Price) })
	sort.SliceStable(b.Asks, func(i, j int) bool { return b.Asks[i].Price.LessThan(b.Asks[j].Price) })
}

// Clone returns a deep copy.
func (b *OrderBook) Clone() *OrderBook {
	if b == nil {
		return nil
	}

	return &OrderBook{
		TokenID:   b.TokenID,
		Bids:      append([]Level(nil), b.Bids...),
		Asks:      append([]Level(nil), b.Asks...),
		Timestamp: b.Timestamp,
	}
}

// BestBid returns the top bid.
func (b *OrderBook) BestBid() (Level, bool) {
	if b == nil || len(b.Bids) == 0 {
		return Level{}, false
	}

	return b.Bids[0], true
}

// BestAsk returns the top ask.
func (b *OrderBook) BestAsk() (Level, bool) {
	if b == nil || len(b.Asks) == 0 {
		return Level{}, false
	}

	return b.Asks[0], true
}

// MidPrice is the average of best bid and best ask.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}

	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Spread is best ask minus best bid.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}

	return ask.Price.Sub(bid.Price), true
}

// MarketBook pairs the YES and NO books of one market.
// Timestamp is the older of the two book timestamps.
type MarketBook struct {
	MarketID  string
	Yes       *OrderBook
	No        *OrderBook
	Timestamp time.Time
}

// NewMarketBook pairs two books.
func NewMarketBook(marketID string, yes, no *OrderBook) *MarketBook {
	ts := yes.Timestamp
	if no.Timestamp.Before(ts) {
		ts = no.Timestamp
	}

	return &MarketBook{MarketID: marketID, Yes: yes, No: no, Timestamp: ts}
}

// Age returns the time since the older book was updated.
func (m *MarketBook) Age(now time.Time) time.Duration {
	return now.Sub(m.Timestamp)
}

// Book returns the book for an outcome.
func (m *MarketBook) Book(outcome Outcome) *OrderBook {
	if outcome == OutcomeNo {
		return m.No
	}

	return m.Yes
}

// CombinedAsk returns best_ask(YES) + best_ask(NO), false if either side has no asks.
func (m *MarketBook) CombinedAsk() (decimal.Decimal, bool) {
	yes, okYes := m.Yes.BestAsk()
	no, okNo := m.No.BestAsk()
	if !okYes || !okNo {
		return decimal.Zero, false
	}

	return yes.Price.Add(no.Price), true
}
