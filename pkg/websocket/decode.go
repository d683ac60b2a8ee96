package websocket

import (
	"bytes"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

const (
	eventBook        = "book"
	eventPriceChange = "price_change"
)

// Decode parses one market-channel frame. The server sends either a single
// object or an array of them; empty arrays are heartbeats. Event types other
// than book and price_change are skipped.
func Decode(frame []byte, received time.Time) ([]*types.MarketEvent, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, nil
	}

	var raws []json.RawMessage
	switch frame[0] {
	case '[':
		if err := json.Unmarshal(frame, &raws); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
	case '{':
		raws = []json.RawMessage{frame}
	default:
		return nil, fmt.Errorf("non-json frame %q", preview(frame))
	}

	events := make([]*types.MarketEvent, 0, len(raws))
	for _, raw := range raws {
		var head struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return events, fmt.Errorf("decode event type: %w", err)
		}

		switch head.EventType {
		case eventBook:
			var msg types.OrderbookMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				return events, fmt.Errorf("decode book: %w", err)
			}
			events = append(events, &types.MarketEvent{Book: &msg, ReceivedAt: received})
		case eventPriceChange:
			var msg types.PriceChangeMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				return events, fmt.Errorf("decode price_change: %w", err)
			}
			events = append(events, &types.MarketEvent{PriceChange: &msg, ReceivedAt: received})
		default:
			MessagesSkippedTotal.WithLabelValues(head.EventType).Inc()
		}
	}

	return events, nil
}

func preview(b []byte) string {
	if len(b) > 100 {
		return string(b[:100])
	}
	return string(b)
}
