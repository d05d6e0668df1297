package types

import "time"

// Trade is the immutable record of one executed buy. Created only by the
// execution gateway and never mutated afterwards.
type Trade struct {
	ID         string    `json:"id"`
	CycleID    string    `json:"cycleId"`
	MarketSlug string    `json:"marketSlug"`
	Leg        int       `json:"leg"` // 1 = entry, 2 = hedge, 0 = flatten
	Side       Side      `json:"side"`
	TokenID    string    `json:"tokenId"`
	Shares     float64   `json:"shares"`
	Price      float64   `json:"price"`
	Cost       float64   `json:"cost"` // shares x price
	Fee        float64   `json:"fee"`
	CashAfter  float64   `json:"cashAfter"`
	Live       bool      `json:"live"`
	ExecutedAt time.Time `json:"executedAt"`
}
