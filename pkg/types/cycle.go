package types

import "time"

// CycleStatus is the cycle state machine's state.
// pending -> leg1_done -> {complete | incomplete}; a terminal cycle is
// later moved to settled by the external settlement process.
type CycleStatus string

const (
	CyclePending    CycleStatus = "pending"
	CycleLeg1Done   CycleStatus = "leg1_done"
	CycleComplete   CycleStatus = "complete"
	CycleIncomplete CycleStatus = "incomplete"
	CycleSettled    CycleStatus = "settled"
)

// Terminal reports whether the status is past the trading phase.
func (s CycleStatus) Terminal() bool {
	return s == CycleComplete || s == CycleIncomplete || s == CycleSettled
}

// Leg holds the data of one executed leg. A nil Leg pointer on a Cycle
// means that leg has not executed; a pending cycle carries no leg data
// at all.
type Leg struct {
	Side       Side      `json:"side"`
	TokenID    string    `json:"tokenId"`
	Price      float64   `json:"price"`
	Shares     float64   `json:"shares"`
	Cost       float64   `json:"cost"`
	ExecutedAt time.Time `json:"executedAt"`
}

// Cycle is one two-leg trading attempt against a single market. At most one
// non-terminal cycle exists per engine instance.
type Cycle struct {
	ID              string      `json:"id"`
	MarketSlug      string      `json:"marketSlug"`
	CreatedAt       time.Time   `json:"createdAt"`
	Leg1            *Leg        `json:"leg1,omitempty"`
	Leg2            *Leg        `json:"leg2,omitempty"`
	TotalCost       float64     `json:"totalCost"`
	LockedProfit    float64     `json:"lockedProfit"`
	LockedProfitPct float64     `json:"lockedProfitPct"`
	Status          CycleStatus `json:"status"`
	ClosedAt        time.Time   `json:"closedAt,omitempty"`
}
