package portfolio

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// Ledger tracks paper cash, per-side share positions and realized P&L.
// It is owned by the engine goroutine and mutated only between ticks, so it
// carries no lock; all external reads go through the engine command channel.
type Ledger struct {
	logger       *zap.Logger
	startingCash float64
	cash         float64
	positions    map[types.Side]float64
	realizedPnL  float64
}

// NewLedger creates a ledger with the given starting bankroll.
func NewLedger(startingCash float64, logger *zap.Logger) *Ledger {
	return &Ledger{
		logger:       logger,
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[types.Side]float64),
	}
}

// Cash returns available cash.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// Position returns the share count held on a side.
func (l *Ledger) Position(side types.Side) float64 {
	return l.positions[side]
}

// RealizedPnL returns cumulative realized profit and loss.
func (l *Ledger) RealizedPnL() float64 {
	return l.realizedPnL
}

// CanAfford reports whether cash covers the given total cost.
func (l *Ledger) CanAfford(cost float64) bool {
	return l.cash >= cost
}

// ApplyBuy debits cash and credits the side position. The cash >= 0
// invariant is enforced here as a final guard behind the engine's pre-trade
// check.
func (l *Ledger) ApplyBuy(side types.Side, shares, cost float64) error {
	if cost > l.cash {
		return &types.InsufficientFundsError{Required: cost, Available: l.cash}
	}

	l.cash -= cost
	l.positions[side] += shares

	l.logger.Debug("ledger-buy-applied",
		zap.String("side", string(side)),
		zap.Float64("shares", shares),
		zap.Float64("cost", cost),
		zap.Float64("cash", l.cash))

	return nil
}

// ApplySell credits cash with proceeds, debits the side position and books
// the realized P&L delta for the flattened shares.
func (l *Ledger) ApplySell(side types.Side, shares, proceeds, costBasis float64) error {
	if shares > l.positions[side] {
		return &types.ValidationError{
			Field:  "shares",
			Reason: "sell exceeds held position",
		}
	}

	l.cash += proceeds
	l.positions[side] -= shares
	l.realizedPnL += proceeds - costBasis

	l.logger.Debug("ledger-sell-applied",
		zap.String("side", string(side)),
		zap.Float64("shares", shares),
		zap.Float64("proceeds", proceeds),
		zap.Float64("realized-delta", proceeds-costBasis))

	return nil
}

// SettleHedgedCycle settles a completed two-leg cycle: exactly one of the
// two legs pays out 1.0 per share at resolution, so the pair redeems for
// shares x 1.0 regardless of the outcome. Both legs are removed.
func (l *Ledger) SettleHedgedCycle(shares, lockedProfit float64) {
	l.cash += shares
	l.positions[types.SideUp] -= shares
	l.positions[types.SideDown] -= shares
	for _, side := range types.Sides {
		if l.positions[side] < 0 {
			l.positions[side] = 0
		}
	}
	l.realizedPnL += lockedProfit

	l.logger.Info("cycle-settled",
		zap.Float64("shares", shares),
		zap.Float64("locked-profit", lockedProfit),
		zap.Float64("cash", l.cash))
}

// UnrealizedPnL values open positions at the given best bids.
func (l *Ledger) UnrealizedPnL(bestBids map[types.Side]float64) float64 {
	var total float64
	for side, shares := range l.positions {
		total += shares * bestBids[side]
	}
	return total
}

// Equity is cash plus open positions marked at best bid.
func (l *Ledger) Equity(bestBids map[types.Side]float64) float64 {
	return l.cash + l.UnrealizedPnL(bestBids)
}

// Snapshot produces an equity snapshot valued at the given best bids.
func (l *Ledger) Snapshot(bestBids map[types.Side]float64, now time.Time) *types.EquitySnapshot {
	unrealized := l.UnrealizedPnL(bestBids)
	return &types.EquitySnapshot{
		ID:             uuid.NewString(),
		Cash:           l.cash,
		PositionsValue: unrealized,
		UnrealizedPnL:  unrealized,
		RealizedPnL:    l.realizedPnL,
		Equity:         l.cash + unrealized,
		TakenAt:        now,
	}
}

// Reset restores the starting bankroll and clears positions and P&L.
func (l *Ledger) Reset() {
	l.cash = l.startingCash
	l.positions = make(map[types.Side]float64)
	l.realizedPnL = 0

	l.logger.Info("ledger-reset", zap.Float64("cash", l.cash))
}
