package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// OrderbookMessage is a message from the market WebSocket feed.
type OrderbookMessage struct {
	EventType string       `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp int64        `json:"-"` // Parsed from string via UnmarshalJSON
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`
}

// UnmarshalJSON handles the feed's string-encoded timestamp.
func (o *OrderbookMessage) UnmarshalJSON(data []byte) error {
	type alias OrderbookMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*alias
	}{
		alias: (*alias)(o),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.TimestampStr != "" {
		ts, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		o.Timestamp = ts
	}

	return nil
}

// PriceLevel is a single price level in the orderbook.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderbookSnapshot is the engine's cached view of one token's book.
// Feed updates replace the whole snapshot, never mutate it in place, so a
// reader always sees a self-consistent pair of best levels.
type OrderbookSnapshot struct {
	TokenID      string
	Side         Side
	BestBidPrice float64
	BestBidSize  float64
	BestAskPrice float64
	BestAskSize  float64
	LastUpdated  time.Time
}
