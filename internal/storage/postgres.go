package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-store-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStore{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// UpsertMarket records a discovered market, updating status on conflict.
func (p *PostgresStore) UpsertMarket(ctx context.Context, market *types.Market) error {
	query := `
		INSERT INTO markets (
			slug, question, up_token_id, down_token_id,
			start_time, end_time, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slug) DO UPDATE SET status = EXCLUDED.status
	`

	_, err := p.db.ExecContext(ctx, query,
		market.Slug,
		market.Question,
		market.UpTokenID,
		market.DownTokenID,
		market.StartTime,
		market.EndTime,
		market.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}

	return nil
}

// CreateCycle inserts a new cycle in its initial state.
func (p *PostgresStore) CreateCycle(ctx context.Context, cycle *types.Cycle) error {
	query := `
		INSERT INTO cycles (id, market_slug, status, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := p.db.ExecContext(ctx, query,
		cycle.ID,
		cycle.MarketSlug,
		cycle.Status,
		cycle.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	p.logger.Debug("cycle-stored",
		zap.String("cycle-id", cycle.ID),
		zap.String("market-slug", cycle.MarketSlug))

	return nil
}

// UpdateCycle persists a cycle state change.
func (p *PostgresStore) UpdateCycle(ctx context.Context, cycle *types.Cycle) error {
	query := `
		UPDATE cycles SET
			status = $2,
			leg1_side = $3, leg1_price = $4, leg1_shares = $5,
			leg2_side = $6, leg2_price = $7, leg2_shares = $8,
			total_cost = $9, locked_profit = $10, locked_profit_pct = $11,
			closed_at = $12
		WHERE id = $1
	`

	var leg1Side, leg2Side sql.NullString
	var leg1Price, leg1Shares, leg2Price, leg2Shares sql.NullFloat64
	if cycle.Leg1 != nil {
		leg1Side = sql.NullString{String: string(cycle.Leg1.Side), Valid: true}
		leg1Price = sql.NullFloat64{Float64: cycle.Leg1.Price, Valid: true}
		leg1Shares = sql.NullFloat64{Float64: cycle.Leg1.Shares, Valid: true}
	}
	if cycle.Leg2 != nil {
		leg2Side = sql.NullString{String: string(cycle.Leg2.Side), Valid: true}
		leg2Price = sql.NullFloat64{Float64: cycle.Leg2.Price, Valid: true}
		leg2Shares = sql.NullFloat64{Float64: cycle.Leg2.Shares, Valid: true}
	}

	var closedAt sql.NullTime
	if !cycle.ClosedAt.IsZero() {
		closedAt = sql.NullTime{Time: cycle.ClosedAt, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, query,
		cycle.ID,
		cycle.Status,
		leg1Side, leg1Price, leg1Shares,
		leg2Side, leg2Price, leg2Shares,
		cycle.TotalCost, cycle.LockedProfit, cycle.LockedProfitPct,
		closedAt,
	)
	if err != nil {
		return fmt.Errorf("update cycle: %w", err)
	}

	return nil
}

// CreateTrade inserts an executed trade.
func (p *PostgresStore) CreateTrade(ctx context.Context, trade *types.Trade) error {
	query := `
		INSERT INTO trades (
			id, cycle_id, market_slug, leg, side, token_id,
			shares, price, cost, fee, cash_after, live, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := p.db.ExecContext(ctx, query,
		trade.ID,
		trade.CycleID,
		trade.MarketSlug,
		trade.Leg,
		trade.Side,
		trade.TokenID,
		trade.Shares,
		trade.Price,
		trade.Cost,
		trade.Fee,
		trade.CashAfter,
		trade.Live,
		trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	p.logger.Debug("trade-stored",
		zap.String("trade-id", trade.ID),
		zap.String("cycle-id", trade.CycleID),
		zap.Float64("shares", trade.Shares),
		zap.Float64("price", trade.Price))

	return nil
}

// CreateEquitySnapshot inserts an equity snapshot.
func (p *PostgresStore) CreateEquitySnapshot(ctx context.Context, snap *types.EquitySnapshot) error {
	query := `
		INSERT INTO equity_snapshots (
			id, cash, positions_value, unrealized_pnl, realized_pnl,
			equity, taken_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.db.ExecContext(ctx, query,
		snap.ID,
		snap.Cash,
		snap.PositionsValue,
		snap.UnrealizedPnL,
		snap.RealizedPnL,
		snap.Equity,
		snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("insert equity snapshot: %w", err)
	}

	return nil
}

// RecentTrades returns the most recent trades, newest first.
func (p *PostgresStore) RecentTrades(ctx context.Context, limit int) ([]*types.Trade, error) {
	query := `
		SELECT id, cycle_id, market_slug, leg, side, token_id,
			shares, price, cost, fee, cash_after, live, executed_at
		FROM trades
		ORDER BY executed_at DESC
		LIMIT $1
	`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*types.Trade
	for rows.Next() {
		t := &types.Trade{}
		err = rows.Scan(
			&t.ID, &t.CycleID, &t.MarketSlug, &t.Leg, &t.Side, &t.TokenID,
			&t.Shares, &t.Price, &t.Cost, &t.Fee, &t.CashAfter, &t.Live,
			&t.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	return trades, nil
}

// SaveEngineState upserts the single engine state row.
func (p *PostgresStore) SaveEngineState(ctx context.Context, state *types.EngineState) error {
	query := `
		INSERT INTO engine_state (
			id, enabled, mode, shares, sum_target, move_threshold,
			move_window_sec, watch_window_min, fee_bps, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			mode = EXCLUDED.mode,
			shares = EXCLUDED.shares,
			sum_target = EXCLUDED.sum_target,
			move_threshold = EXCLUDED.move_threshold,
			move_window_sec = EXCLUDED.move_window_sec,
			watch_window_min = EXCLUDED.watch_window_min,
			fee_bps = EXCLUDED.fee_bps,
			updated_at = EXCLUDED.updated_at
	`

	_, err := p.db.ExecContext(ctx, query,
		state.Enabled,
		state.Mode,
		state.Shares,
		state.SumTarget,
		state.MoveThreshold,
		state.MoveWindowSec,
		state.WatchWindowMin,
		state.FeeBps,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}

	return nil
}

// LoadEngineState returns the persisted engine state, or nil when no state
// has been saved yet.
func (p *PostgresStore) LoadEngineState(ctx context.Context) (*types.EngineState, error) {
	query := `
		SELECT enabled, mode, shares, sum_target, move_threshold,
			move_window_sec, watch_window_min, fee_bps, updated_at
		FROM engine_state
		WHERE id = 1
	`

	state := &types.EngineState{}
	err := p.db.QueryRowContext(ctx, query).Scan(
		&state.Enabled,
		&state.Mode,
		&state.Shares,
		&state.SumTarget,
		&state.MoveThreshold,
		&state.MoveWindowSec,
		&state.WatchWindowMin,
		&state.FeeBps,
		&state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load engine state: %w", err)
	}

	return state, nil
}

// OpenPositions returns net shares per side across trades belonging to
// non-terminal cycles.
func (p *PostgresStore) OpenPositions(ctx context.Context) (map[types.Side]float64, error) {
	query := `
		SELECT t.side, COALESCE(SUM(t.shares), 0)
		FROM trades t
		JOIN cycles c ON c.id = t.cycle_id
		WHERE c.status IN ($1, $2)
		GROUP BY t.side
	`

	rows, err := p.db.QueryContext(ctx, query, types.CyclePending, types.CycleLeg1Done)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[types.Side]float64)
	for rows.Next() {
		var side types.Side
		var shares float64
		err = rows.Scan(&side, &shares)
		if err != nil {
			return nil, fmt.Errorf("scan open position: %w", err)
		}
		positions[side] = shares
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate open positions: %w", err)
	}

	return positions, nil
}

// LatestEquitySnapshot returns the most recent equity snapshot, or nil when
// none exists.
func (p *PostgresStore) LatestEquitySnapshot(ctx context.Context) (*types.EquitySnapshot, error) {
	query := `
		SELECT id, cash, positions_value, unrealized_pnl, realized_pnl,
			equity, taken_at
		FROM equity_snapshots
		ORDER BY taken_at DESC
		LIMIT 1
	`

	snap := &types.EquitySnapshot{}
	err := p.db.QueryRowContext(ctx, query).Scan(
		&snap.ID,
		&snap.Cash,
		&snap.PositionsValue,
		&snap.UnrealizedPnL,
		&snap.RealizedPnL,
		&snap.Equity,
		&snap.TakenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest equity snapshot: %w", err)
	}

	return snap, nil
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	p.logger.Info("closing-postgres-store")
	return p.db.Close()
}
