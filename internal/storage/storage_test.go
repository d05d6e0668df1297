package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := &PostgresStore{
		db:     db,
		logger: zap.NewNop(),
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, mock
}

func TestPostgresUpsertMarket(t *testing.T) {
	store, mock := newMockStore(t)

	market := &types.Market{
		Slug:        "bitcoin-up-or-down-march-1-12pm-et",
		Question:    "Bitcoin Up or Down - March 1, 12PM ET",
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
		StartTime:   time.Now(),
		EndTime:     time.Now().Add(15 * time.Minute),
		Status:      types.MarketUpcoming,
	}

	mock.ExpectExec("INSERT INTO markets").
		WithArgs(market.Slug, market.Question, market.UpTokenID, market.DownTokenID,
			market.StartTime, market.EndTime, market.Status).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.UpsertMarket(context.Background(), market)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAndUpdateCycle(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	cycle := &types.Cycle{
		ID:         "cycle-1",
		MarketSlug: "bitcoin-up-or-down-march-1-12pm-et",
		Status:     types.CyclePending,
		CreatedAt:  now,
	}

	mock.ExpectExec("INSERT INTO cycles").
		WithArgs(cycle.ID, cycle.MarketSlug, cycle.Status, cycle.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.CreateCycle(context.Background(), cycle))

	cycle.Leg1 = &types.Leg{
		Side:       types.SideUp,
		TokenID:    "tok-up",
		Price:      0.45,
		Shares:     10,
		Cost:       4.5,
		ExecutedAt: now,
	}
	cycle.Status = types.CycleLeg1Done
	cycle.TotalCost = 4.5

	mock.ExpectExec("UPDATE cycles").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.UpdateCycle(context.Background(), cycle))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateTrade(t *testing.T) {
	store, mock := newMockStore(t)

	trade := &types.Trade{
		ID:         "trade-1",
		CycleID:    "cycle-1",
		MarketSlug: "bitcoin-up-or-down-march-1-12pm-et",
		Leg:        1,
		Side:       types.SideUp,
		TokenID:    "tok-up",
		Shares:     10,
		Price:      0.45,
		Cost:       4.5,
		Fee:        0,
		CashAfter:  995.5,
		Live:       false,
		ExecutedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO trades").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateTrade(context.Background(), trade)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateTrade_Error(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO trades").
		WillReturnError(assert.AnError)

	err := store.CreateTrade(context.Background(), &types.Trade{ID: "trade-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert trade")
}

func TestPostgresCreateEquitySnapshot(t *testing.T) {
	store, mock := newMockStore(t)

	snap := &types.EquitySnapshot{
		ID:             "snap-1",
		Cash:           995.5,
		PositionsValue: 4.5,
		UnrealizedPnL:  4.5,
		RealizedPnL:    0,
		Equity:         1000,
		TakenAt:        time.Now(),
	}

	mock.ExpectExec("INSERT INTO equity_snapshots").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateEquitySnapshot(context.Background(), snap)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecentTrades(t *testing.T) {
	store, mock := newMockStore(t)

	executed := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "cycle_id", "market_slug", "leg", "side", "token_id",
		"shares", "price", "cost", "fee", "cash_after", "live", "executed_at",
	}).AddRow("trade-2", "cycle-1", "slug", 2, "DOWN", "tok-down",
		10.0, 0.40, 4.0, 0.0, 991.5, false, executed).
		AddRow("trade-1", "cycle-1", "slug", 1, "UP", "tok-up",
			10.0, 0.45, 4.5, 0.0, 995.5, false, executed.Add(-time.Second))

	mock.ExpectQuery("SELECT (.+) FROM trades").
		WithArgs(10).
		WillReturnRows(rows)

	trades, err := store.RecentTrades(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "trade-2", trades[0].ID)
	assert.Equal(t, types.SideDown, trades[0].Side)
}

func TestPostgresSaveAndLoadEngineState(t *testing.T) {
	store, mock := newMockStore(t)

	state := &types.EngineState{
		Enabled:        true,
		Mode:           "sim-realistic",
		Shares:         10,
		SumTarget:      0.95,
		MoveThreshold:  0.15,
		MoveWindowSec:  10,
		WatchWindowMin: 2,
		FeeBps:         0,
		UpdatedAt:      time.Now(),
	}

	mock.ExpectExec("INSERT INTO engine_state").
		WithArgs(state.Enabled, state.Mode, state.Shares, state.SumTarget,
			state.MoveThreshold, state.MoveWindowSec, state.WatchWindowMin,
			state.FeeBps, state.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SaveEngineState(context.Background(), state))

	rows := sqlmock.NewRows([]string{
		"enabled", "mode", "shares", "sum_target", "move_threshold",
		"move_window_sec", "watch_window_min", "fee_bps", "updated_at",
	}).AddRow(true, "sim-realistic", 10.0, 0.95, 0.15, 10, 2, 0, state.UpdatedAt)

	mock.ExpectQuery("SELECT (.+) FROM engine_state").WillReturnRows(rows)

	loaded, err := store.LoadEngineState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "sim-realistic", loaded.Mode)
	assert.Equal(t, 10.0, loaded.Shares)
	assert.True(t, loaded.Enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadEngineState_NoneSaved(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM engine_state").
		WillReturnRows(sqlmock.NewRows([]string{"enabled"}))

	loaded, err := store.LoadEngineState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestPostgresOpenPositions(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"side", "sum"}).
		AddRow("UP", 10.0)

	mock.ExpectQuery("SELECT (.+) FROM trades").
		WithArgs(types.CyclePending, types.CycleLeg1Done).
		WillReturnRows(rows)

	positions, err := store.OpenPositions(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10.0, positions[types.SideUp], 1e-9)
	assert.InDelta(t, 0.0, positions[types.SideDown], 1e-9)
}

func TestPostgresLatestEquitySnapshot(t *testing.T) {
	store, mock := newMockStore(t)

	taken := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "cash", "positions_value", "unrealized_pnl", "realized_pnl",
		"equity", "taken_at",
	}).AddRow("snap-2", 995.5, 4.5, 0.0, 0.5, 1000.0, taken)

	mock.ExpectQuery("SELECT (.+) FROM equity_snapshots").WillReturnRows(rows)

	snap, err := store.LatestEquitySnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "snap-2", snap.ID)
	assert.InDelta(t, 1000.0, snap.Equity, 1e-9)

	mock.ExpectQuery("SELECT (.+) FROM equity_snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	snap, err = store.LatestEquitySnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestConsoleStoreEngineState(t *testing.T) {
	store := NewConsoleStore(zap.NewNop())
	ctx := context.Background()

	loaded, err := store.LoadEngineState(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	state := &types.EngineState{Enabled: false, Mode: "sim"}
	require.NoError(t, store.SaveEngineState(ctx, state))

	loaded, err = store.LoadEngineState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.False(t, loaded.Enabled)
}

func TestConsoleStoreOpenPositions(t *testing.T) {
	store := NewConsoleStore(zap.NewNop())
	ctx := context.Background()

	open := &types.Cycle{ID: "c-open", Status: types.CycleLeg1Done}
	closed := &types.Cycle{ID: "c-closed", Status: types.CycleComplete}
	require.NoError(t, store.CreateCycle(ctx, open))
	require.NoError(t, store.CreateCycle(ctx, closed))
	require.NoError(t, store.UpdateCycle(ctx, closed))

	require.NoError(t, store.CreateTrade(ctx, &types.Trade{
		ID: "t1", CycleID: "c-open", Side: types.SideUp, Shares: 10,
	}))
	require.NoError(t, store.CreateTrade(ctx, &types.Trade{
		ID: "t2", CycleID: "c-closed", Side: types.SideDown, Shares: 10,
	}))

	positions, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, positions[types.SideUp], 1e-9)
	assert.InDelta(t, 0.0, positions[types.SideDown], 1e-9)
}

func TestConsoleStoreRecentTrades(t *testing.T) {
	store := NewConsoleStore(zap.NewNop())
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, store.CreateTrade(ctx, &types.Trade{ID: id}))
	}

	trades, err := store.RecentTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t3", trades[0].ID)
	assert.Equal(t, "t2", trades[1].ID)
}
