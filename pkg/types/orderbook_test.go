package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPriceChangeMessage_UnmarshalJSON(t *testing.T) {
	input := `{
		"event_type": "price_change",
		"market": "0xabc123",
		"timestamp": "1234567890000",
		"price_changes": [
			{"asset_id": "token1", "price": "0.52", "size": "10", "side": "BUY", "best_bid": "0.52", "best_ask": "0.53"},
			{"asset_id": "token2", "price": "0.47", "size": "0", "side": "SELL"}
		]
	}`

	var msg PriceChangeMessage
	if err := json.Unmarshal([]byte(input), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg.Timestamp != 1234567890000 {
		t.Errorf("Timestamp = %d, want %d", msg.Timestamp, 1234567890000)
	}
	if len(msg.PriceChanges) != 2 {
		t.Fatalf("len(PriceChanges) = %d, want 2", len(msg.PriceChanges))
	}
	if msg.PriceChanges[1].Size != "0" || msg.PriceChanges[1].Side != "SELL" {
		t.Errorf("PriceChanges[1] = %+v", msg.PriceChanges[1])
	}
}

func TestOrderbookMessage_InvalidTimestamp(t *testing.T) {
	var msg OrderbookMessage
	err := json.Unmarshal([]byte(`{"event_type":"book","timestamp":"abc"}`), &msg)
	if err == nil {
		t.Fatal("expected error for non-numeric timestamp")
	}
}

func TestOrderBook_DerivedPrices(t *testing.T) {
	book := NewOrderBook("yes",
		[]Level{{Price: d("0.40"), Size: d("10")}, {Price: d("0.44"), Size: d("5")}},
		[]Level{{Price: d("0.50"), Size: d("7")}, {Price: d("0.46"), Size: d("100")}},
		time.Unix(0, 0),
	)

	bid, ok := book.BestBid()
	if !ok || !bid.Price.Equal(d("0.44")) {
		t.Errorf("BestBid() = %v, want 0.44", bid.Price)
	}
	ask, ok := book.BestAsk()
	if !ok || !ask.Price.Equal(d("0.46")) {
		t.Errorf("BestAsk() = %v, want 0.46", ask.Price)
	}
	mid, _ := book.MidPrice()
	if !mid.Equal(d("0.45")) {
		t.Errorf("MidPrice() = %v, want 0.45", mid)
	}
	spread, _ := book.Spread()
	if !spread.Equal(d("0.02")) {
		t.Errorf("Spread() = %v, want 0.02", spread)
	}
}

func TestMarketBook_CombinedAsk(t *testing.T) {
	now := time.Now()
	yes := NewOrderBook("yes", nil, []Level{{Price: d("0.46"), Size: d("100")}}, now)
	no := NewOrderBook("no", nil, []Level{{Price: d("0.50"), Size: d("100")}}, now.Add(-time.Second))

	mb := NewMarketBook("m1", yes, no)
	combined, ok := mb.CombinedAsk()
	if !ok || !combined.Equal(d("0.96")) {
		t.Errorf("CombinedAsk() = %v, %v; want 0.96, true", combined, ok)
	}
	if !mb.Timestamp.Equal(no.Timestamp) {
		t.Errorf("Timestamp should be the older book's timestamp")
	}

	empty := NewMarketBook("m2", yes, NewOrderBook("no", nil, nil, now))
	if _, ok := empty.CombinedAsk(); ok {
		t.Error("CombinedAsk() should be undefined when a side has no asks")
	}
}

func TestParseLevels_SkipsInvalid(t *testing.T) {
	levels := ParseLevels([]PriceLevel{
		{Price: "0.5", Size: "10"},
		{Price: "bad", Size: "1"},
		{Price: "0.6", Size: "0"},
	})
	if len(levels) != 1 {
		t.Fatalf("len = %d, want 1", len(levels))
	}
}
