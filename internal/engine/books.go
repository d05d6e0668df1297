package engine

import (
	"strconv"
	"time"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// Empty-book price conventions: a missing bid quotes 0.0 (worthless to
// sell into), a missing ask quotes 1.0 (nothing to buy).
const (
	emptyBookBid = 0.0
	emptyBookAsk = 1.0
)

// books is the engine's view of the current market's two orderbooks. It is
// owned by the engine goroutine: feed messages are applied between ticks,
// so a tick always evaluates a self-consistent pair of snapshots.
type books struct {
	byToken map[string]*types.OrderbookSnapshot
}

func newBooks() *books {
	return &books{
		byToken: make(map[string]*types.OrderbookSnapshot),
	}
}

// apply folds a feed message into the token's snapshot. Full "book"
// messages replace both sides wholesale; "price_change" messages update
// only the sides they carry. Returns the updated snapshot, or nil when the
// message does not belong to the given market.
func (b *books) apply(msg *types.OrderbookMessage, market *types.Market, now time.Time) *types.OrderbookSnapshot {
	if market == nil {
		return nil
	}

	side := market.SideForToken(msg.AssetID)
	if side == types.SideNone {
		return nil
	}

	snap := &types.OrderbookSnapshot{
		TokenID:     msg.AssetID,
		Side:        side,
		LastUpdated: now,
	}

	switch msg.EventType {
	case "book":
		snap.BestBidPrice, snap.BestBidSize = bestLevel(msg.Bids, true)
		snap.BestAskPrice, snap.BestAskSize = bestLevel(msg.Asks, false)
	case "price_change":
		// Carry forward the untouched side.
		if prev, ok := b.byToken[msg.AssetID]; ok {
			*snap = *prev
			snap.LastUpdated = now
		}
		if len(msg.Bids) > 0 {
			snap.BestBidPrice, snap.BestBidSize = bestLevel(msg.Bids, true)
		}
		if len(msg.Asks) > 0 {
			snap.BestAskPrice, snap.BestAskSize = bestLevel(msg.Asks, false)
		}
	default:
		return nil
	}

	b.byToken[msg.AssetID] = snap
	return snap
}

// bestAsk returns the best ask for a token, or the empty-book placeholder.
func (b *books) bestAsk(tokenID string) float64 {
	snap, ok := b.byToken[tokenID]
	if !ok || snap.BestAskPrice <= 0 {
		return emptyBookAsk
	}
	return snap.BestAskPrice
}

// bestBid returns the best bid for a token, or the empty-book placeholder.
func (b *books) bestBid(tokenID string) float64 {
	snap, ok := b.byToken[tokenID]
	if !ok || snap.BestBidPrice <= 0 {
		return emptyBookBid
	}
	return snap.BestBidPrice
}

// bestBids collects per-side best bids for marking positions to market.
func (b *books) bestBids(market *types.Market) map[types.Side]float64 {
	bids := make(map[types.Side]float64, 2)
	if market == nil {
		return bids
	}
	for _, side := range types.Sides {
		bids[side] = b.bestBid(market.TokenID(side))
	}
	return bids
}

// snapshot returns the stored snapshot for a token.
func (b *books) snapshot(tokenID string) (*types.OrderbookSnapshot, bool) {
	snap, ok := b.byToken[tokenID]
	return snap, ok
}

// reset drops all snapshots, typically on market rotation.
func (b *books) reset() {
	b.byToken = make(map[string]*types.OrderbookSnapshot)
}

// bestLevel scans price levels for the best price: highest for bids,
// lowest for asks. Unparseable levels are skipped.
func bestLevel(levels []types.PriceLevel, isBid bool) (price, size float64) {
	for _, level := range levels {
		p, err := strconv.ParseFloat(level.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		s, err := strconv.ParseFloat(level.Size, 64)
		if err != nil {
			continue
		}

		if price == 0 || (isBid && p > price) || (!isBid && p < price) {
			price, size = p, s
		}
	}
	return price, size
}
