package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/internal/execution"
	"github.com/msoriano-dev/updown-cycle-bot/internal/portfolio"
	"github.com/msoriano-dev/updown-cycle-bot/internal/signal"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/config"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	markets    []*types.Market
	cycles     map[string]*types.Cycle
	trades     []*types.Trade
	snapshots  []*types.EquitySnapshot
	state      *types.EngineState
	failTrades bool
}

func newMemStore() *memStore {
	return &memStore{cycles: make(map[string]*types.Cycle)}
}

func (m *memStore) UpsertMarket(ctx context.Context, market *types.Market) error {
	m.markets = append(m.markets, market)
	return nil
}

func (m *memStore) CreateCycle(ctx context.Context, cycle *types.Cycle) error {
	m.cycles[cycle.ID] = cycle
	return nil
}

func (m *memStore) UpdateCycle(ctx context.Context, cycle *types.Cycle) error {
	m.cycles[cycle.ID] = cycle
	return nil
}

func (m *memStore) CreateTrade(ctx context.Context, trade *types.Trade) error {
	if m.failTrades {
		return errors.New("insert trade: connection refused")
	}
	m.trades = append(m.trades, trade)
	return nil
}

func (m *memStore) CreateEquitySnapshot(ctx context.Context, snap *types.EquitySnapshot) error {
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memStore) RecentTrades(ctx context.Context, limit int) ([]*types.Trade, error) {
	var out []*types.Trade
	for i := len(m.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.trades[i])
	}
	return out, nil
}

func (m *memStore) SaveEngineState(ctx context.Context, state *types.EngineState) error {
	m.state = state
	return nil
}

func (m *memStore) LoadEngineState(ctx context.Context) (*types.EngineState, error) {
	return m.state, nil
}

func (m *memStore) OpenPositions(ctx context.Context) (map[types.Side]float64, error) {
	positions := make(map[types.Side]float64)
	for _, trade := range m.trades {
		if c, ok := m.cycles[trade.CycleID]; ok && c.Status.Terminal() {
			continue
		}
		positions[trade.Side] += trade.Shares
	}
	return positions, nil
}

func (m *memStore) LatestEquitySnapshot(ctx context.Context) (*types.EquitySnapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	return m.snapshots[len(m.snapshots)-1], nil
}

func (m *memStore) Close() error { return nil }

func testConfig(startingCash float64) *config.Config {
	return &config.Config{
		TickInterval:           100 * time.Millisecond,
		EquitySnapshotInterval: time.Minute,
		MinValidPrice:          0.02,
		StartingCash:           startingCash,
		ExecutionMode:          execution.ModeSim,
		Strategy: config.Strategy{
			Shares:         10,
			SumTarget:      0.95,
			MoveThreshold:  0.15,
			MoveWindowSec:  10,
			WatchWindowMin: 2,
		},
	}
}

func newTestEngine(startingCash float64, store *memStore) *Engine {
	logger := zap.NewNop()
	cfg := testConfig(startingCash)

	return New(Options{
		Config:  cfg,
		Logger:  logger,
		Tracker: signal.New(cfg.MinValidPrice, logger),
		Ledger:  portfolio.NewLedger(startingCash, logger),
		Gateway: execution.NewSimulatedGateway(false, logger),
		Factory: func(mode string) (execution.Gateway, error) {
			if mode == execution.ModeLive {
				return nil, errors.New("live credentials not configured")
			}
			return execution.NewSimulatedGateway(mode == execution.ModeSimRealistic, logger), nil
		},
		Store:  store,
		Events: NewPublisher(256, logger),
	})
}

func testMarket(now time.Time) *types.Market {
	return &types.Market{
		Slug:        "bitcoin-up-or-down-september-1-3pm-et",
		Question:    "Bitcoin Up or Down - September 1, 3PM ET",
		UpTokenID:   "up-token",
		DownTokenID: "down-token",
		StartTime:   now.Add(-30 * time.Second),
		EndTime:     now.Add(14 * time.Minute),
		Status:      types.MarketLive,
	}
}

func bookMsg(tokenID, bid, ask string) *types.OrderbookMessage {
	msg := &types.OrderbookMessage{
		EventType: "book",
		AssetID:   tokenID,
	}
	if bid != "" {
		msg.Bids = []types.PriceLevel{{Price: bid, Size: "100"}}
	}
	if ask != "" {
		msg.Asks = []types.PriceLevel{{Price: ask, Size: "100"}}
	}
	return msg
}

func TestTwoLegHappyPath(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	require.NotNil(t, eng.cycle)
	require.Equal(t, types.CyclePending, eng.cycle.Status)
	require.True(t, eng.watchActive)

	// UP asks at 0.50, then dumps 20% to 0.40 within the window.
	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))

	eng.evaluate(ctx, now.Add(2*time.Second))

	require.Equal(t, types.CycleLeg1Done, eng.cycle.Status)
	require.NotNil(t, eng.cycle.Leg1)
	assert.Equal(t, types.SideUp, eng.cycle.Leg1.Side)
	assert.InDelta(t, 0.40, eng.cycle.Leg1.Price, 1e-9)
	assert.InDelta(t, 996.0, eng.ledger.Cash(), 1e-9)
	assert.False(t, eng.watchActive)

	// Hedge not ready: 0.40 + 0.60 > 0.95.
	eng.handleFeedMessage(bookMsg("down-token", "0.58", "0.60"), now.Add(3*time.Second))
	eng.evaluate(ctx, now.Add(3*time.Second))
	assert.Equal(t, types.CycleLeg1Done, eng.cycle.Status)

	// Hedge ready at the boundary: 0.40 + 0.55 == 0.95.
	eng.handleFeedMessage(bookMsg("down-token", "0.53", "0.55"), now.Add(4*time.Second))
	eng.evaluate(ctx, now.Add(4*time.Second))

	cycle := eng.cycle
	require.Equal(t, types.CycleComplete, cycle.Status)
	require.NotNil(t, cycle.Leg2)
	assert.Equal(t, types.SideDown, cycle.Leg2.Side)
	assert.InDelta(t, 9.5, cycle.TotalCost, 1e-9)
	assert.InDelta(t, 0.5, cycle.LockedProfit, 1e-9)
	assert.False(t, cycle.ClosedAt.IsZero())

	// Settlement: both legs redeemed at 1.0 per share.
	assert.InDelta(t, 1000.5, eng.ledger.Cash(), 1e-9)
	assert.InDelta(t, 0.5, eng.ledger.RealizedPnL(), 1e-9)
	assert.InDelta(t, 0, eng.ledger.Position(types.SideUp), 1e-9)
	assert.InDelta(t, 0, eng.ledger.Position(types.SideDown), 1e-9)

	require.Len(t, store.trades, 2)
	assert.Equal(t, 1, store.trades[0].Leg)
	assert.Equal(t, 2, store.trades[1].Leg)
	assert.Equal(t, cycle, store.cycles[cycle.ID])
}

func TestDumpIgnoredAfterWatchWindow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))

	// Evaluate after the watch deadline has passed.
	afterDeadline := eng.watchDeadline.Add(time.Second)
	eng.evaluate(ctx, afterDeadline)

	assert.Equal(t, types.CyclePending, eng.cycle.Status)
	assert.False(t, eng.watchActive)
	assert.Empty(t, store.trades)
}

func TestInsufficientFundsLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))

	eng.evaluate(ctx, now.Add(2*time.Second))

	assert.Equal(t, types.CyclePending, eng.cycle.Status)
	assert.InDelta(t, 1.0, eng.ledger.Cash(), 1e-9)
	assert.Empty(t, store.trades)
}

func TestTradePersistFailureDoesNotMutatePortfolio(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failTrades = true
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))

	eng.evaluate(ctx, now.Add(2*time.Second))

	assert.Equal(t, types.CyclePending, eng.cycle.Status)
	assert.InDelta(t, 1000.0, eng.ledger.Cash(), 1e-9)
	assert.Empty(t, store.trades)
}

func TestMarketEndFlattensHeldLeg(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))
	eng.evaluate(ctx, now.Add(2*time.Second))
	require.Equal(t, types.CycleLeg1Done, eng.cycle.Status)

	cycleID := eng.cycle.ID

	// The hedge never fires; the market ends with UP bidding 0.35.
	eng.handleFeedMessage(bookMsg("up-token", "0.35", "0.37"), now.Add(3*time.Second))
	eng.closeOutCycle(ctx, now.Add(14*time.Minute))

	assert.Nil(t, eng.cycle)
	cycle := store.cycles[cycleID]
	require.NotNil(t, cycle)
	assert.Equal(t, types.CycleIncomplete, cycle.Status)

	// 10 shares sold at 0.35 against a 4.00 cost basis.
	assert.InDelta(t, 999.5, eng.ledger.Cash(), 1e-9)
	assert.InDelta(t, -0.5, eng.ledger.RealizedPnL(), 1e-9)
	assert.InDelta(t, 0, eng.ledger.Position(types.SideUp), 1e-9)

	require.Len(t, store.trades, 2)
	flatten := store.trades[1]
	assert.Equal(t, 0, flatten.Leg)
	assert.InDelta(t, -10.0, flatten.Shares, 1e-9)
}

func TestMarketEndFlattensIntoEmptyBook(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))
	eng.evaluate(ctx, now.Add(2*time.Second))
	require.Equal(t, types.CycleLeg1Done, eng.cycle.Status)

	// Book goes away entirely before the end: flatten at 0.0, full loss.
	eng.books.reset()
	eng.closeOutCycle(ctx, now.Add(14*time.Minute))

	assert.Nil(t, eng.cycle)
	assert.InDelta(t, 996.0, eng.ledger.Cash(), 1e-9)
	assert.InDelta(t, -4.0, eng.ledger.RealizedPnL(), 1e-9)
}

func TestPendingCycleClosesIncompleteWithoutTrades(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)
	cycleID := eng.cycle.ID

	eng.closeOutCycle(ctx, now.Add(14*time.Minute))

	assert.Nil(t, eng.cycle)
	assert.Equal(t, types.CycleIncomplete, store.cycles[cycleID].Status)
	assert.Empty(t, store.trades)
	assert.InDelta(t, 1000.0, eng.ledger.Cash(), 1e-9)
}

func TestCompletedCycleIsInertOnFurtherTicks(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))
	eng.evaluate(ctx, now.Add(2*time.Second))
	eng.handleFeedMessage(bookMsg("down-token", "0.53", "0.55"), now.Add(3*time.Second))
	eng.evaluate(ctx, now.Add(3*time.Second))
	require.Equal(t, types.CycleComplete, eng.cycle.Status)

	cashAfter := eng.ledger.Cash()
	tradesAfter := len(store.trades)

	for i := 0; i < 5; i++ {
		eng.evaluate(ctx, now.Add(time.Duration(4+i)*time.Second))
	}

	assert.Equal(t, cashAfter, eng.ledger.Cash())
	assert.Len(t, store.trades, tradesAfter)
}

func TestRejectedEntryAllowsRetriggerOnDeeperDump(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(3.5, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	// Dump to 0.40: 10 shares cost 4.00, more than the 3.50 bankroll.
	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))
	eng.evaluate(ctx, now.Add(2*time.Second))

	require.Equal(t, types.CyclePending, eng.cycle.Status)
	require.Empty(t, store.trades)
	// The rejected entry must not consume the latch.
	assert.False(t, eng.tracker.IsTriggered(types.SideUp))

	// The slide continues to 0.30, which the bankroll now covers.
	eng.handleFeedMessage(bookMsg("up-token", "0.28", "0.30"), now.Add(3*time.Second))
	eng.evaluate(ctx, now.Add(4*time.Second))

	require.Equal(t, types.CycleLeg1Done, eng.cycle.Status)
	assert.InDelta(t, 0.30, eng.cycle.Leg1.Price, 1e-9)
	assert.InDelta(t, 0.5, eng.ledger.Cash(), 1e-9)
	require.Len(t, store.trades, 1)
}

func TestStatusCycleDetachedFromEngineState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	status := eng.buildStatus(ctx, now)
	require.NotNil(t, status.Cycle)
	require.Equal(t, types.CyclePending, status.Cycle.Status)

	// The engine keeps trading after the snapshot was handed out.
	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))
	eng.evaluate(ctx, now.Add(2*time.Second))
	require.Equal(t, types.CycleLeg1Done, eng.cycle.Status)

	// The snapshot is a copy and must not see the mutation.
	assert.Equal(t, types.CyclePending, status.Cycle.Status)
	assert.Nil(t, status.Cycle.Leg1)
}

func TestFeeRateUpdateAppliesToNextOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	require.NoError(t, eng.strategy.ApplyUpdate("feeBps", "100")) // 1%

	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))
	eng.evaluate(ctx, now.Add(2*time.Second))

	require.Equal(t, types.CycleLeg1Done, eng.cycle.Status)
	require.Len(t, store.trades, 1)

	// 10 shares at 0.40 with the updated 1% taker fee.
	assert.InDelta(t, 0.04, store.trades[0].Fee, 1e-9)
	assert.InDelta(t, 4.04, eng.cycle.Leg1.Cost, 1e-9)
	assert.InDelta(t, 995.96, eng.ledger.Cash(), 1e-9)
}

func TestPersistedStateRestoredOnStart(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.state = &types.EngineState{
		Enabled:        false,
		Mode:           execution.ModeSimRealistic,
		Shares:         5,
		SumTarget:      0.90,
		MoveThreshold:  0.20,
		MoveWindowSec:  15,
		WatchWindowMin: 3,
		FeeBps:         50,
	}
	eng := newTestEngine(1000, store)

	eng.restoreState(ctx)

	assert.False(t, eng.enabled)
	assert.Equal(t, execution.ModeSimRealistic, eng.mode)
	assert.InDelta(t, 5.0, eng.strategy.Shares, 1e-9)
	assert.InDelta(t, 0.90, eng.strategy.SumTarget, 1e-9)
	assert.Equal(t, 50, eng.strategy.FeeBps)
}

func TestInvalidPersistedStateKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.state = &types.EngineState{Mode: execution.ModeSim, Shares: -1}
	eng := newTestEngine(1000, store)

	eng.restoreState(ctx)

	assert.True(t, eng.enabled)
	assert.InDelta(t, 10.0, eng.strategy.Shares, 1e-9)
}

func TestPersistedLiveModeNotRestoredWithoutFundedWallet(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.state = &types.EngineState{
		Enabled:        true,
		Mode:           execution.ModeLive,
		Shares:         10,
		SumTarget:      0.95,
		MoveThreshold:  0.15,
		MoveWindowSec:  10,
		WatchWindowMin: 2,
	}
	eng := newTestEngine(1000, store)

	eng.restoreState(ctx)

	assert.Equal(t, execution.ModeSim, eng.mode)
}

func TestDisabledEngineEntersNoNewCycles(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)
	eng.enabled = false

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	eng.handleFeedMessage(bookMsg("up-token", "0.48", "0.50"), now)
	eng.handleFeedMessage(bookMsg("up-token", "0.38", "0.40"), now.Add(time.Second))
	eng.evaluate(ctx, now.Add(2*time.Second))

	assert.Equal(t, types.CyclePending, eng.cycle.Status)
	assert.Empty(t, store.trades)

	// Re-enabling picks the dump up from the retained history.
	eng.enabled = true
	eng.evaluate(ctx, now.Add(3*time.Second))
	require.Equal(t, types.CycleLeg1Done, eng.cycle.Status)

	// Disabling only blocks entries: the hedge of a held leg still fires.
	eng.enabled = false
	eng.handleFeedMessage(bookMsg("down-token", "0.53", "0.55"), now.Add(4*time.Second))
	eng.evaluate(ctx, now.Add(4*time.Second))
	assert.Equal(t, types.CycleComplete, eng.cycle.Status)
}

func TestFeedMessagesForOtherMarketsIgnored(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	eng := newTestEngine(1000, store)

	now := time.Now()
	eng.adoptMarket(ctx, testMarket(now), now)

	eng.handleFeedMessage(bookMsg("unrelated-token", "0.10", "0.12"), now)

	eng.evaluate(ctx, now.Add(time.Second))
	assert.Equal(t, types.CyclePending, eng.cycle.Status)
	_, ok := eng.books.snapshot("unrelated-token")
	assert.False(t, ok)
}
