package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// newCycle creates a pending cycle for a market.
func newCycle(marketSlug string, now time.Time) *types.Cycle {
	return &types.Cycle{
		ID:         uuid.NewString(),
		MarketSlug: marketSlug,
		CreatedAt:  now,
		Status:     types.CyclePending,
	}
}

// applyLeg1 records the first leg and moves the cycle to leg1_done.
func applyLeg1(c *types.Cycle, trade *types.Trade) {
	c.Leg1 = &types.Leg{
		Side:       trade.Side,
		TokenID:    trade.TokenID,
		Price:      trade.Price,
		Shares:     trade.Shares,
		Cost:       trade.Cost + trade.Fee,
		ExecutedAt: trade.ExecutedAt,
	}
	c.TotalCost = c.Leg1.Cost
	c.Status = types.CycleLeg1Done
}

// applyLeg2 records the hedge leg and completes the cycle. The pair redeems
// at 1.0 per share, so locked profit is shares minus total cost.
func applyLeg2(c *types.Cycle, trade *types.Trade, now time.Time) {
	c.Leg2 = &types.Leg{
		Side:       trade.Side,
		TokenID:    trade.TokenID,
		Price:      trade.Price,
		Shares:     trade.Shares,
		Cost:       trade.Cost + trade.Fee,
		ExecutedAt: trade.ExecutedAt,
	}
	c.TotalCost += c.Leg2.Cost
	c.LockedProfit = c.Leg1.Shares*1.0 - c.TotalCost
	if c.TotalCost > 0 {
		c.LockedProfitPct = c.LockedProfit / c.TotalCost * 100
	}
	c.Status = types.CycleComplete
	c.ClosedAt = now
}

// cloneCycle deep-copies a cycle. Status snapshots hand the copy to other
// goroutines while the engine keeps mutating the original.
func cloneCycle(c *types.Cycle) *types.Cycle {
	if c == nil {
		return nil
	}

	cp := *c
	if c.Leg1 != nil {
		leg := *c.Leg1
		cp.Leg1 = &leg
	}
	if c.Leg2 != nil {
		leg := *c.Leg2
		cp.Leg2 = &leg
	}
	return &cp
}

// markIncomplete closes a cycle that did not reach the hedge.
func markIncomplete(c *types.Cycle, now time.Time) {
	c.Status = types.CycleIncomplete
	c.ClosedAt = now
}

// hedgeReady reports whether the hedge condition holds: the leg-1 entry
// price plus the opposite side's best ask at or under the sum target.
func hedgeReady(c *types.Cycle, oppositeAsk, sumTarget float64) bool {
	if c.Leg1 == nil {
		return false
	}
	return c.Leg1.Price+oppositeAsk <= sumTarget
}
