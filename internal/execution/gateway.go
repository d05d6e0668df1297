package execution

import (
	"context"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// Execution modes.
const (
	ModeSim          = "sim"
	ModeSimRealistic = "sim-realistic"
	ModeLive         = "live"
)

// BuyRequest asks the gateway to buy shares of one outcome token.
type BuyRequest struct {
	CycleID       string
	MarketSlug    string
	Leg           int
	Side          types.Side
	TokenID       string
	Shares        float64
	Price         float64 // best ask at decision time
	AvailableCash float64
	FeeBps        int // taker fee at decision time, from the live strategy config
}

// SellRequest asks the gateway to flatten a held position at the bid.
type SellRequest struct {
	CycleID    string
	MarketSlug string
	Side       types.Side
	TokenID    string
	Shares     float64
	Price      float64 // best bid at decision time; 0 on an empty book
	FeeBps     int
}

// SellResult carries the executed flatten.
type SellResult struct {
	Trade    *types.Trade
	Proceeds float64
}

// Gateway executes buys and flattening sells. Implementations must return
// trades reflecting ACTUAL fill prices, not requested prices, so the
// portfolio books what really happened.
type Gateway interface {
	// Buy executes a buy. Returns InsufficientFundsError when available
	// cash does not cover shares x price plus fee; no order is placed.
	Buy(ctx context.Context, req *BuyRequest) (*types.Trade, error)

	// Sell flattens a position at the bid. A zero-price sell is valid and
	// realizes the full loss.
	Sell(ctx context.Context, req *SellRequest) (*SellResult, error)

	// Mode returns the gateway's execution mode.
	Mode() string
}

// Fee returns the taker fee for a notional of shares x price.
func Fee(shares, price float64, feeBps int) float64 {
	return shares * price * float64(feeBps) / 10000.0
}
