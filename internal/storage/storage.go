package storage

import (
	"context"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// Store persists markets, cycles, trades and equity history. Trade and cycle
// writes are critical: callers must treat a write failure as failure of the
// whole operation. Equity snapshots are best-effort.
type Store interface {
	// UpsertMarket records a discovered market, updating status on conflict.
	UpsertMarket(ctx context.Context, market *types.Market) error

	// CreateCycle inserts a new cycle in its initial state.
	CreateCycle(ctx context.Context, cycle *types.Cycle) error

	// UpdateCycle persists a cycle state change.
	UpdateCycle(ctx context.Context, cycle *types.Cycle) error

	// CreateTrade inserts an executed trade.
	CreateTrade(ctx context.Context, trade *types.Trade) error

	// CreateEquitySnapshot inserts an equity snapshot.
	CreateEquitySnapshot(ctx context.Context, snap *types.EquitySnapshot) error

	// RecentTrades returns the most recent trades, newest first.
	RecentTrades(ctx context.Context, limit int) ([]*types.Trade, error)

	// SaveEngineState upserts the single persisted engine state row.
	SaveEngineState(ctx context.Context, state *types.EngineState) error

	// LoadEngineState returns the persisted engine state, or nil when no
	// state has been saved yet.
	LoadEngineState(ctx context.Context) (*types.EngineState, error)

	// OpenPositions returns net shares per side across trades that belong
	// to non-terminal cycles.
	OpenPositions(ctx context.Context) (map[types.Side]float64, error)

	// LatestEquitySnapshot returns the most recent equity snapshot, or nil
	// when none exists.
	LatestEquitySnapshot(ctx context.Context) (*types.EquitySnapshot, error)

	// Close closes the storage connection.
	Close() error
}
