package types

import "time"

// EquitySnapshot is a point-in-time valuation of the paper portfolio.
type EquitySnapshot struct {
	ID             string    `json:"id"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positionsValue"`
	UnrealizedPnL  float64   `json:"unrealizedPnl"`
	RealizedPnL    float64   `json:"realizedPnl"`
	Equity         float64   `json:"equity"`
	TakenAt        time.Time `json:"takenAt"`
}
