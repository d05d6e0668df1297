package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/internal/execution"
	"github.com/msoriano-dev/updown-cycle-bot/internal/signal"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/config"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// Status is the point-in-time snapshot served by GET /api/status.
type Status struct {
	Running       bool                             `json:"running"`
	Enabled       bool                             `json:"enabled"`
	Mode          string                           `json:"mode"`
	UptimeSeconds float64                          `json:"uptimeSeconds"`
	Cash          float64                          `json:"cash"`
	Positions     map[types.Side]float64           `json:"positions"`
	RealizedPnL   float64                          `json:"realizedPnl"`
	UnrealizedPnL float64                          `json:"unrealizedPnl"`
	Equity        float64                          `json:"equity"`
	WatchActive   bool                             `json:"watchActive"`
	Market        *MarketStatus                    `json:"market,omitempty"`
	Cycle         *types.Cycle                     `json:"cycle,omitempty"`
	Signal        map[types.Side]signal.SideStatus `json:"signal"`
	Strategy      config.Strategy                  `json:"strategy"`
	LiveStats     *execution.LiveStats             `json:"liveStats,omitempty"`
	RecentTrades  []*types.Trade                   `json:"recentTrades"`
}

// MarketStatus describes the currently tracked market with its top of book.
type MarketStatus struct {
	Slug      string                 `json:"slug"`
	Question  string                 `json:"question"`
	Status    types.MarketStatus     `json:"status"`
	StartTime time.Time              `json:"startTime"`
	EndTime   time.Time              `json:"endTime"`
	BestBids  map[types.Side]float64 `json:"bestBids"`
	BestAsks  map[types.Side]float64 `json:"bestAsks"`
}

// do runs fn on the engine goroutine and waits for it to finish, so command
// handlers see the same serialized state as ticks.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	wrapped := func(c context.Context) {
		defer close(done)
		fn(c)
	}

	select {
	case e.cmdCh <- wrapped:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status implements httpserver.Controller.
func (e *Engine) Status(ctx context.Context) (interface{}, error) {
	var status *Status
	err := e.do(ctx, func(c context.Context) {
		status = e.buildStatus(c, time.Now())
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (e *Engine) buildStatus(ctx context.Context, now time.Time) *Status {
	window := time.Duration(e.strategy.MoveWindowSec) * time.Second
	bestBids := e.books.bestBids(e.market)

	status := &Status{
		Running:       true,
		Enabled:       e.enabled,
		Mode:          e.mode,
		UptimeSeconds: now.Sub(e.startedAt).Seconds(),
		Cash:          e.ledger.Cash(),
		Positions:     make(map[types.Side]float64, 2),
		RealizedPnL:   e.ledger.RealizedPnL(),
		UnrealizedPnL: e.ledger.UnrealizedPnL(bestBids),
		Equity:        e.ledger.Equity(bestBids),
		WatchActive:   e.watchActive,
		Cycle:         cloneCycle(e.cycle),
		Signal:        e.tracker.Status(window, now),
		Strategy:      e.strategy,
	}

	for _, side := range types.Sides {
		status.Positions[side] = e.ledger.Position(side)
	}

	if e.market != nil {
		ms := &MarketStatus{
			Slug:      e.market.Slug,
			Question:  e.market.Question,
			Status:    e.market.Status,
			StartTime: e.market.StartTime,
			EndTime:   e.market.EndTime,
			BestBids:  bestBids,
			BestAsks:  make(map[types.Side]float64, 2),
		}
		for _, side := range types.Sides {
			ms.BestAsks[side] = e.books.bestAsk(e.market.TokenID(side))
		}
		status.Market = ms
	}

	if live, ok := e.gateway.(*execution.LiveGateway); ok {
		stats := live.Stats()
		status.LiveStats = &stats
	}

	trades, err := e.store.RecentTrades(ctx, 20)
	if err != nil {
		e.logger.Warn("recent-trades-query-failed", zap.Error(err))
	} else {
		status.RecentTrades = trades
	}

	return status
}

// UpdateConfig implements httpserver.Controller. The update is validated
// against a copy first, so a rejected value leaves the strategy untouched.
func (e *Engine) UpdateConfig(ctx context.Context, key, value string) error {
	var applyErr error
	err := e.do(ctx, func(c context.Context) {
		applyErr = e.strategy.ApplyUpdate(key, value)
		if applyErr == nil {
			e.persistState(c)
			e.logger.Info("strategy-updated",
				zap.String("key", key),
				zap.String("value", value))
		}
	})
	if err != nil {
		return err
	}
	return applyErr
}

// ResetPaper implements httpserver.Controller. Only available in the
// simulation modes; cash returns to the starting bankroll and any open
// cycle is discarded.
func (e *Engine) ResetPaper(ctx context.Context) error {
	var resetErr error
	err := e.do(ctx, func(context.Context) {
		if e.mode == execution.ModeLive {
			resetErr = &types.ValidationError{
				Field:  "mode",
				Reason: "paper reset is not available in live mode",
			}
			return
		}

		e.ledger.Reset()
		e.cycle = nil
		e.watchActive = false
		e.tracker.Reset()
		e.logger.Info("paper-trading-reset")
	})
	if err != nil {
		return err
	}
	return resetErr
}

// SetMode implements httpserver.Controller. Switching to live requires a
// gateway factory that can build a live gateway and a passing wallet check.
func (e *Engine) SetMode(ctx context.Context, mode string) error {
	switch mode {
	case execution.ModeSim, execution.ModeSimRealistic, execution.ModeLive:
	default:
		return &types.ValidationError{Field: "mode", Reason: "unknown mode"}
	}

	var switchErr error
	err := e.do(ctx, func(c context.Context) {
		if mode == e.mode {
			return
		}

		if mode == execution.ModeLive {
			if e.liveCheck == nil {
				switchErr = &types.ValidationError{
					Field:  "mode",
					Reason: "live trading is not configured",
				}
				return
			}

			funded, checkErr := e.liveCheck(c, e.strategy.Shares)
			if checkErr != nil {
				switchErr = checkErr
				return
			}
			if !funded {
				switchErr = &types.ValidationError{
					Field:  "mode",
					Reason: "wallet balance or allowance insufficient for live trading",
				}
				return
			}
		}

		gateway, buildErr := e.factory(mode)
		if buildErr != nil {
			switchErr = buildErr
			return
		}

		e.gateway = gateway
		e.mode = mode
		e.persistState(c)
		e.logger.Info("execution-mode-switched", zap.String("mode", mode))
	})
	if err != nil {
		return err
	}
	return switchErr
}

// SetEnabled implements httpserver.Controller. Disabling stops new leg-1
// entries; an open hedge still completes and market-end handling still runs.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) error {
	return e.do(ctx, func(c context.Context) {
		if e.enabled == enabled {
			return
		}

		e.enabled = enabled
		e.persistState(c)
		e.logger.Info("trading-enabled-changed", zap.Bool("enabled", enabled))
	})
}

// SelectMarket implements httpserver.Controller. Manual selection bypasses
// discovery ordering but still goes through the supervisor, so the
// single-pair subscription invariant holds.
func (e *Engine) SelectMarket(ctx context.Context, slug string) error {
	var selectErr error
	err := e.do(ctx, func(c context.Context) {
		if e.supervisor == nil {
			selectErr = &types.ValidationError{
				Field:  "slug",
				Reason: "market discovery is disabled",
			}
			return
		}

		now := time.Now()
		market, serr := e.supervisor.SelectMarket(c, slug, now)
		if serr != nil {
			selectErr = serr
			return
		}

		e.closeOutCycle(c, now)
		e.adoptMarket(c, market, now)
	})
	if err != nil {
		return err
	}
	return selectErr
}
