package storage

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// ConsoleStore implements Store by pretty-printing trades and cycle closes
// to the console. It keeps recent trades in memory so the status endpoint
// works without a database.
type ConsoleStore struct {
	logger *zap.Logger

	mu       sync.Mutex
	trades   []*types.Trade
	cycles   map[string]types.CycleStatus
	state    *types.EngineState
	lastSnap *types.EquitySnapshot
}

// NewConsoleStore creates a new console store.
func NewConsoleStore(logger *zap.Logger) *ConsoleStore {
	logger.Info("console-store-initialized")
	return &ConsoleStore{
		logger: logger,
		cycles: make(map[string]types.CycleStatus),
	}
}

// UpsertMarket logs the discovered market.
func (c *ConsoleStore) UpsertMarket(ctx context.Context, market *types.Market) error {
	c.logger.Info("market-recorded",
		zap.String("slug", market.Slug),
		zap.String("status", string(market.Status)))
	return nil
}

// CreateCycle logs the new cycle.
func (c *ConsoleStore) CreateCycle(ctx context.Context, cycle *types.Cycle) error {
	c.mu.Lock()
	c.cycles[cycle.ID] = cycle.Status
	c.mu.Unlock()

	c.logger.Info("cycle-recorded",
		zap.String("cycle-id", cycle.ID),
		zap.String("market-slug", cycle.MarketSlug))
	return nil
}

// UpdateCycle pretty-prints terminal cycle states.
func (c *ConsoleStore) UpdateCycle(ctx context.Context, cycle *types.Cycle) error {
	c.mu.Lock()
	c.cycles[cycle.ID] = cycle.Status
	c.mu.Unlock()

	if !cycle.Status.Terminal() {
		return nil
	}

	fmt.Println("\n" + "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("CYCLE %s: %s\n", cycle.ID[:8], cycle.Status)
	fmt.Printf("Market:   %s\n", cycle.MarketSlug)
	if cycle.Leg1 != nil {
		fmt.Printf("Leg 1:    %s %.2f @ %.4f\n", cycle.Leg1.Side, cycle.Leg1.Shares, cycle.Leg1.Price)
	}
	if cycle.Leg2 != nil {
		fmt.Printf("Leg 2:    %s %.2f @ %.4f\n", cycle.Leg2.Side, cycle.Leg2.Shares, cycle.Leg2.Price)
	}
	if cycle.Status == types.CycleComplete {
		fmt.Printf("Locked:   $%.2f (%.2f%%)\n", cycle.LockedProfit, cycle.LockedProfitPct)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return nil
}

// CreateTrade logs the trade and retains it in memory.
func (c *ConsoleStore) CreateTrade(ctx context.Context, trade *types.Trade) error {
	c.mu.Lock()
	c.trades = append(c.trades, trade)
	c.mu.Unlock()

	c.logger.Info("trade-recorded",
		zap.String("trade-id", trade.ID),
		zap.String("side", string(trade.Side)),
		zap.Int("leg", trade.Leg),
		zap.Float64("shares", trade.Shares),
		zap.Float64("price", trade.Price),
		zap.Float64("cash-after", trade.CashAfter))

	return nil
}

// CreateEquitySnapshot logs the snapshot at debug level.
func (c *ConsoleStore) CreateEquitySnapshot(ctx context.Context, snap *types.EquitySnapshot) error {
	c.mu.Lock()
	c.lastSnap = snap
	c.mu.Unlock()

	c.logger.Debug("equity-snapshot",
		zap.Float64("cash", snap.Cash),
		zap.Float64("equity", snap.Equity),
		zap.Float64("realized-pnl", snap.RealizedPnL))
	return nil
}

// RecentTrades returns the most recent trades, newest first.
func (c *ConsoleStore) RecentTrades(ctx context.Context, limit int) ([]*types.Trade, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.trades)
	if limit > n {
		limit = n
	}

	out := make([]*types.Trade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, c.trades[i])
	}

	return out, nil
}

// SaveEngineState keeps the state in memory for the process lifetime.
func (c *ConsoleStore) SaveEngineState(ctx context.Context, state *types.EngineState) error {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.logger.Info("engine-state-recorded",
		zap.Bool("enabled", state.Enabled),
		zap.String("mode", state.Mode))
	return nil
}

// LoadEngineState returns the in-memory state, nil before the first save.
func (c *ConsoleStore) LoadEngineState(ctx context.Context) (*types.EngineState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, nil
}

// OpenPositions sums retained trades belonging to non-terminal cycles.
func (c *ConsoleStore) OpenPositions(ctx context.Context) (map[types.Side]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	positions := make(map[types.Side]float64)
	for _, trade := range c.trades {
		if c.cycles[trade.CycleID].Terminal() {
			continue
		}
		positions[trade.Side] += trade.Shares
	}

	return positions, nil
}

// LatestEquitySnapshot returns the last retained snapshot, nil when none.
func (c *ConsoleStore) LatestEquitySnapshot(ctx context.Context) (*types.EquitySnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSnap, nil
}

// Close is a no-op for console store.
func (c *ConsoleStore) Close() error {
	c.logger.Info("closing-console-store")
	return nil
}
