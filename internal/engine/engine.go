package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/internal/execution"
	"github.com/msoriano-dev/updown-cycle-bot/internal/lifecycle"
	"github.com/msoriano-dev/updown-cycle-bot/internal/portfolio"
	"github.com/msoriano-dev/updown-cycle-bot/internal/signal"
	"github.com/msoriano-dev/updown-cycle-bot/internal/storage"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/config"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// ErrStopped is returned by commands issued after the engine has shut down.
var ErrStopped = errors.New("engine stopped")

// GatewayFactory builds an execution gateway for a mode. Live construction
// may fail when credentials are missing.
type GatewayFactory func(mode string) (execution.Gateway, error)

// LiveCheck verifies live-trading capability (wallet balance and allowance)
// before a switch to live mode is accepted.
type LiveCheck func(ctx context.Context, requiredUSD float64) (bool, error)

// Engine runs the two-leg cycle strategy. All state lives on a single
// goroutine: the run loop multiplexes the 100ms ticker, the feed channel
// and the command channel, so ticks, feed updates and operator commands
// are strictly serialized and the core holds no locks.
type Engine struct {
	cfg      *config.Config
	strategy config.Strategy
	mode     string
	logger   *zap.Logger

	tracker    *signal.Tracker
	ledger     *portfolio.Ledger
	gateway    execution.Gateway
	factory    GatewayFactory
	liveCheck  LiveCheck
	supervisor *lifecycle.Supervisor
	store      storage.Store
	books      *books
	events     *Publisher
	feed       <-chan *types.OrderbookMessage

	market        *types.Market
	cycle         *types.Cycle
	enabled       bool
	watchActive   bool
	watchDeadline time.Time

	cmdCh     chan func(ctx context.Context)
	done      chan struct{}
	startedAt time.Time
}

// Options wires the engine's collaborators.
type Options struct {
	Config     *config.Config
	Logger     *zap.Logger
	Tracker    *signal.Tracker
	Ledger     *portfolio.Ledger
	Gateway    execution.Gateway
	Factory    GatewayFactory
	LiveCheck  LiveCheck
	Supervisor *lifecycle.Supervisor // nil disables automatic market selection
	Store      storage.Store
	Feed       <-chan *types.OrderbookMessage
	Events     *Publisher
}

// New creates an engine.
func New(opts Options) *Engine {
	return &Engine{
		cfg:        opts.Config,
		strategy:   opts.Config.Strategy,
		mode:       opts.Config.ExecutionMode,
		logger:     opts.Logger,
		tracker:    opts.Tracker,
		ledger:     opts.Ledger,
		gateway:    opts.Gateway,
		factory:    opts.Factory,
		liveCheck:  opts.LiveCheck,
		supervisor: opts.Supervisor,
		store:      opts.Store,
		enabled:    true,
		books:      newBooks(),
		events:     opts.Events,
		feed:       opts.Feed,
		cmdCh:      make(chan func(ctx context.Context)),
		done:       make(chan struct{}),
	}
}

// Run drives the engine until the context is cancelled. It owns all engine
// state; nothing else touches it.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)

	e.startedAt = time.Now()

	e.restoreState(ctx)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	equityTicker := time.NewTicker(e.cfg.EquitySnapshotInterval)
	defer equityTicker.Stop()

	e.logger.Info("engine-started",
		zap.String("mode", e.mode),
		zap.Duration("tick-interval", e.cfg.TickInterval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine-stopping")
			return
		case msg, ok := <-e.feed:
			if !ok {
				e.logger.Warn("feed-channel-closed")
				e.feed = nil
				continue
			}
			e.handleFeedMessage(msg, time.Now())
		case cmd := <-e.cmdCh:
			cmd(ctx)
		case <-ticker.C:
			e.tick(ctx, time.Now())
		case <-equityTicker.C:
			e.snapshotEquity(ctx, time.Now())
		}
	}
}

// restoreState reapplies persisted operator state on startup. A missing or
// unreadable row leaves the environment-derived defaults in place. Live mode
// is only restored when the wallet check still passes.
func (e *Engine) restoreState(ctx context.Context) {
	state, err := e.store.LoadEngineState(ctx)
	if err != nil {
		e.logger.Warn("engine-state-load-failed", zap.Error(err))
		return
	}
	if state == nil {
		return
	}

	restored := config.Strategy{
		Shares:         state.Shares,
		SumTarget:      state.SumTarget,
		MoveThreshold:  state.MoveThreshold,
		MoveWindowSec:  state.MoveWindowSec,
		WatchWindowMin: state.WatchWindowMin,
		FeeBps:         state.FeeBps,
	}
	err = restored.Validate()
	if err != nil {
		e.logger.Warn("engine-state-invalid", zap.Error(err))
		return
	}

	e.strategy = restored
	e.enabled = state.Enabled

	if state.Mode != "" && state.Mode != e.mode {
		e.restoreMode(ctx, state.Mode)
	}

	e.logger.Info("engine-state-restored",
		zap.Bool("enabled", e.enabled),
		zap.String("mode", e.mode),
		zap.Time("saved-at", state.UpdatedAt))

	snap, err := e.store.LatestEquitySnapshot(ctx)
	if err != nil {
		e.logger.Warn("equity-snapshot-load-failed", zap.Error(err))
	} else if snap != nil {
		e.logger.Info("last-known-equity",
			zap.Float64("equity", snap.Equity),
			zap.Time("taken-at", snap.TakenAt))
	}

	positions, err := e.store.OpenPositions(ctx)
	if err != nil {
		e.logger.Warn("open-positions-load-failed", zap.Error(err))
		return
	}
	for side, shares := range positions {
		if shares > 0 {
			// Positions from a previous run are not re-adopted; the operator
			// has to resolve them on the exchange.
			e.logger.Warn("unflattened-position-from-previous-run",
				zap.String("side", string(side)),
				zap.Float64("shares", shares))
		}
	}
}

// restoreMode rebuilds the gateway for a persisted mode.
func (e *Engine) restoreMode(ctx context.Context, mode string) {
	if mode == execution.ModeLive {
		funded := false
		if e.liveCheck != nil {
			var err error
			funded, err = e.liveCheck(ctx, e.strategy.Shares)
			if err != nil {
				e.logger.Warn("live-check-failed-on-restore", zap.Error(err))
			}
		}
		if !funded {
			e.logger.Warn("live-mode-not-restored", zap.String("fallback", e.mode))
			return
		}
	}

	gateway, err := e.factory(mode)
	if err != nil {
		e.logger.Warn("gateway-rebuild-failed",
			zap.String("mode", mode),
			zap.Error(err))
		return
	}

	e.gateway = gateway
	e.mode = mode
}

// persistState saves operator state so a restart resumes from it. Failures
// are logged; the in-memory change already applies.
func (e *Engine) persistState(ctx context.Context) {
	state := &types.EngineState{
		Enabled:        e.enabled,
		Mode:           e.mode,
		Shares:         e.strategy.Shares,
		SumTarget:      e.strategy.SumTarget,
		MoveThreshold:  e.strategy.MoveThreshold,
		MoveWindowSec:  e.strategy.MoveWindowSec,
		WatchWindowMin: e.strategy.WatchWindowMin,
		FeeBps:         e.strategy.FeeBps,
		UpdatedAt:      time.Now(),
	}

	err := e.store.SaveEngineState(ctx, state)
	if err != nil {
		e.logger.Warn("engine-state-save-failed", zap.Error(err))
	}
}

// tick advances the strategy one step. Errors never propagate out of a
// tick: each is logged and the tick finishes; the next tick re-evaluates
// from current state.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	TicksTotal.Inc()
	defer func() {
		TickDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	e.supervisorStep(ctx, now)
	e.evaluate(ctx, now)
}

// supervisorStep applies market lifecycle transitions.
func (e *Engine) supervisorStep(ctx context.Context, now time.Time) {
	if e.supervisor == nil {
		return
	}

	event, market, err := e.supervisor.Tick(ctx, now)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Warn("supervisor-tick-error", zap.Error(err))
		return
	}

	switch event {
	case lifecycle.EventMarketSelected:
		e.adoptMarket(ctx, market, now)
	case lifecycle.EventMarketLive:
		e.activateMarket(ctx, market, now)
	case lifecycle.EventMarketEnded:
		e.closeOutCycle(ctx, now)
		e.market = nil
		e.books.reset()
		e.tracker.Reset()
	}
}

// adoptMarket installs a newly selected market.
func (e *Engine) adoptMarket(ctx context.Context, market *types.Market, now time.Time) {
	e.market = market
	e.books.reset()
	e.tracker.Reset()
	e.cycle = nil
	e.watchActive = false

	err := e.store.UpsertMarket(ctx, market)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Error("market-persist-failed", zap.Error(err))
	}

	// A market adopted mid-flight may already be live.
	if market.Status == types.MarketLive {
		e.activateMarket(ctx, market, now)
	}
}

// activateMarket opens the watch window and creates the market's cycle.
func (e *Engine) activateMarket(ctx context.Context, market *types.Market, now time.Time) {
	e.watchActive = true
	e.watchDeadline = market.StartTime.Add(time.Duration(e.strategy.WatchWindowMin) * time.Minute)

	e.cycle = newCycle(market.Slug, now)

	err := e.store.CreateCycle(ctx, e.cycle)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Error("cycle-persist-failed",
			zap.String("cycle-id", e.cycle.ID),
			zap.Error(err))
	}

	e.logger.Info("watch-window-open",
		zap.String("market", market.Slug),
		zap.Time("deadline", e.watchDeadline))
}

// evaluate runs the cycle state machine for the current tick.
func (e *Engine) evaluate(ctx context.Context, now time.Time) {
	if e.market == nil || e.cycle == nil || e.market.Status != types.MarketLive {
		return
	}

	switch e.cycle.Status {
	case types.CyclePending:
		if e.watchActive && now.After(e.watchDeadline) {
			e.watchActive = false
			e.logger.Info("watch-window-expired", zap.String("market", e.market.Slug))
		}
		if !e.watchActive {
			return
		}

		// Disabled engines keep ingesting prices but open no new cycles.
		// A held hedge leg still completes below.
		if !e.enabled {
			return
		}

		window := time.Duration(e.strategy.MoveWindowSec) * time.Second
		det := e.tracker.DetectDump(e.strategy.MoveThreshold, window, now)
		if det.Side == types.SideNone {
			return
		}

		e.enterLeg1(ctx, det)

	case types.CycleLeg1Done:
		opposite := e.cycle.Leg1.Side.Opposite()
		ask := e.books.bestAsk(e.market.TokenID(opposite))
		if hedgeReady(e.cycle, ask, e.strategy.SumTarget) {
			e.enterHedge(ctx, opposite, ask, now)
		}
	}
}

// enterLeg1 buys the dumped side.
func (e *Engine) enterLeg1(ctx context.Context, det signal.Detection) {
	tokenID := e.market.TokenID(det.Side)
	ask := e.books.bestAsk(tokenID)
	if ask >= emptyBookAsk {
		e.logger.Warn("leg1-skipped-empty-book", zap.String("side", string(det.Side)))
		e.tracker.Unlatch(det.Side)
		return
	}

	trade, err := e.gateway.Buy(ctx, &execution.BuyRequest{
		CycleID:       e.cycle.ID,
		MarketSlug:    e.market.Slug,
		Leg:           1,
		Side:          det.Side,
		TokenID:       tokenID,
		Shares:        e.strategy.Shares,
		Price:         ask,
		AvailableCash: e.ledger.Cash(),
		FeeBps:        e.strategy.FeeBps,
	})
	if err != nil {
		e.noteBuyError("leg1", err)
		// No order executed, so the side may trigger again.
		e.tracker.Unlatch(det.Side)
		return
	}

	trade.CashAfter = e.ledger.Cash() - trade.Cost - trade.Fee

	// Trade persistence is critical: on failure nothing is booked.
	err = e.store.CreateTrade(ctx, trade)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Error("trade-persist-failed",
			zap.String("trade-id", trade.ID),
			zap.Error(err))
		return
	}

	err = e.ledger.ApplyBuy(det.Side, trade.Shares, trade.Cost+trade.Fee)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Error("ledger-apply-failed", zap.Error(err))
		return
	}

	applyLeg1(e.cycle, trade)
	e.watchActive = false
	EquityGauge.Set(e.ledger.Equity(e.books.bestBids(e.market)))

	err = e.store.UpdateCycle(ctx, e.cycle)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Error("cycle-persist-failed", zap.Error(err))
	}

	e.logger.Info("leg1-entered",
		zap.String("cycle-id", e.cycle.ID),
		zap.String("side", string(det.Side)),
		zap.Float64("price", trade.Price),
		zap.Float64("drop-pct", det.DropPct))

	e.events.Publish(EventTradeExecuted, trade)
	e.events.Publish(EventLeg1Entered, e.cycle)
}

// enterHedge buys the opposite side and completes the cycle.
func (e *Engine) enterHedge(ctx context.Context, side types.Side, ask float64, now time.Time) {
	trade, err := e.gateway.Buy(ctx, &execution.BuyRequest{
		CycleID:       e.cycle.ID,
		MarketSlug:    e.market.Slug,
		Leg:           2,
		Side:          side,
		TokenID:       e.market.TokenID(side),
		Shares:        e.cycle.Leg1.Shares,
		Price:         ask,
		AvailableCash: e.ledger.Cash(),
		FeeBps:        e.strategy.FeeBps,
	})
	if err != nil {
		e.noteBuyError("hedge", err)
		return
	}

	trade.CashAfter = e.ledger.Cash() - trade.Cost - trade.Fee

	err = e.store.CreateTrade(ctx, trade)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Error("trade-persist-failed",
			zap.String("trade-id", trade.ID),
			zap.Error(err))
		return
	}

	err = e.ledger.ApplyBuy(side, trade.Shares, trade.Cost+trade.Fee)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Error("ledger-apply-failed", zap.Error(err))
		return
	}

	applyLeg2(e.cycle, trade, now)
	e.ledger.SettleHedgedCycle(e.cycle.Leg1.Shares, e.cycle.LockedProfit)
	EquityGauge.Set(e.ledger.Equity(e.books.bestBids(e.market)))

	CyclesTotal.WithLabelValues(string(types.CycleComplete)).Inc()
	if e.cycle.LockedProfit > 0 {
		LockedProfitTotal.Add(e.cycle.LockedProfit)
	}

	err = e.store.UpdateCycle(ctx, e.cycle)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Error("cycle-persist-failed", zap.Error(err))
	}

	e.logger.Info("cycle-complete",
		zap.String("cycle-id", e.cycle.ID),
		zap.Float64("locked-profit", e.cycle.LockedProfit),
		zap.Float64("locked-profit-pct", e.cycle.LockedProfitPct))

	e.events.Publish(EventTradeExecuted, trade)
	e.events.Publish(EventCycleComplete, e.cycle)
}

// closeOutCycle resolves a non-terminal cycle when its market ends. A held
// leg-1 position is flattened at the best bid; an empty book flattens at
// zero and realizes the full loss.
func (e *Engine) closeOutCycle(ctx context.Context, now time.Time) {
	if e.cycle == nil || e.cycle.Status.Terminal() {
		e.cycle = nil
		return
	}

	if e.cycle.Status == types.CycleLeg1Done {
		leg1 := e.cycle.Leg1
		bid := e.books.bestBid(leg1.TokenID)
		if bid == emptyBookBid {
			e.logger.Warn("flattening-into-empty-book",
				zap.String("cycle-id", e.cycle.ID),
				zap.String("side", string(leg1.Side)))
		}

		res, err := e.gateway.Sell(ctx, &execution.SellRequest{
			CycleID:    e.cycle.ID,
			MarketSlug: e.cycle.MarketSlug,
			Side:       leg1.Side,
			TokenID:    leg1.TokenID,
			Shares:     leg1.Shares,
			Price:      bid,
			FeeBps:     e.strategy.FeeBps,
		})
		if err != nil {
			TickErrorsTotal.Inc()
			e.logger.Error("flatten-failed",
				zap.String("cycle-id", e.cycle.ID),
				zap.Error(err))
		} else {
			res.Trade.CashAfter = e.ledger.Cash() + res.Proceeds

			err = e.store.CreateTrade(ctx, res.Trade)
			if err != nil {
				TickErrorsTotal.Inc()
				e.logger.Error("trade-persist-failed", zap.Error(err))
			} else {
				err = e.ledger.ApplySell(leg1.Side, leg1.Shares, res.Proceeds, leg1.Cost)
				if err != nil {
					TickErrorsTotal.Inc()
					e.logger.Error("ledger-apply-failed", zap.Error(err))
				}
				EquityGauge.Set(e.ledger.Equity(e.books.bestBids(e.market)))
				e.events.Publish(EventTradeExecuted, res.Trade)
			}
		}
	}

	markIncomplete(e.cycle, now)
	CyclesTotal.WithLabelValues(string(types.CycleIncomplete)).Inc()

	err := e.store.UpdateCycle(ctx, e.cycle)
	if err != nil {
		TickErrorsTotal.Inc()
		e.logger.Error("cycle-persist-failed", zap.Error(err))
	}

	e.logger.Info("cycle-incomplete", zap.String("cycle-id", e.cycle.ID))
	e.cycle = nil
}

// handleFeedMessage folds a feed update into the books and the signal
// tracker.
func (e *Engine) handleFeedMessage(msg *types.OrderbookMessage, now time.Time) {
	snap := e.books.apply(msg, e.market, now)
	if snap == nil {
		return
	}

	if snap.BestAskPrice > 0 {
		e.tracker.AddSnapshot(snap.Side, snap.BestAskPrice, now)
	}

	e.events.Publish(EventOrderbookUpdated, snap)
}

// snapshotEquity persists an equity snapshot. Best-effort: a write failure
// is logged and skipped.
func (e *Engine) snapshotEquity(ctx context.Context, now time.Time) {
	snap := e.ledger.Snapshot(e.books.bestBids(e.market), now)
	EquityGauge.Set(snap.Equity)

	err := e.store.CreateEquitySnapshot(ctx, snap)
	if err != nil {
		e.logger.Warn("equity-snapshot-failed", zap.Error(err))
	}
}

func (e *Engine) noteBuyError(stage string, err error) {
	var fundsErr *types.InsufficientFundsError
	if errors.As(err, &fundsErr) {
		// Rejective, not destructive: state is untouched and the same
		// condition is re-checked next tick.
		e.logger.Info("buy-rejected-insufficient-funds",
			zap.String("stage", stage),
			zap.Float64("required", fundsErr.Required),
			zap.Float64("available", fundsErr.Available))
		return
	}

	var timeoutErr *types.ExecutionTimeoutError
	if errors.As(err, &timeoutErr) {
		TickErrorsTotal.Inc()
		e.logger.Warn("buy-timed-out",
			zap.String("stage", stage),
			zap.String("order-id", timeoutErr.OrderID))
		return
	}

	TickErrorsTotal.Inc()
	e.logger.Error("buy-failed", zap.String("stage", stage), zap.Error(err))
}
