package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/cache"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

const marketCacheTTL = 30 * time.Minute

// Event is a lifecycle transition surfaced to the engine.
type Event int

const (
	// EventNone means nothing changed this tick.
	EventNone Event = iota

	// EventMarketSelected means a new market was selected and its token
	// pair subscribed. The market may already be live.
	EventMarketSelected

	// EventMarketLive means the current market crossed its start time.
	EventMarketLive

	// EventMarketEnded means the current market crossed its end time. The
	// engine must close out the running cycle before the next selection.
	EventMarketEnded
)

// Fetcher discovers candidate markets.
type Fetcher interface {
	FetchUpDownMarkets(ctx context.Context, slugPrefix string, horizon time.Duration, now time.Time) ([]*types.Market, error)
}

// Subscriber swaps the feed subscription to a new token pair.
type Subscriber interface {
	SwapSubscription(ctx context.Context, tokenIDs []string) error
}

// Supervisor owns market selection and lifecycle transitions. It is driven
// by the engine's tick loop: Tick is called from the engine goroutine, so no
// state here needs locking. Transitions are decided purely by wall clock
// against the stored start/end times.
type Supervisor struct {
	fetcher     Fetcher
	subscriber  Subscriber
	cache       cache.Cache
	logger      *zap.Logger
	slugPrefix  string
	poll        time.Duration
	horizon     time.Duration
	lastPoll    time.Time
	known       map[string]*types.Market
	current     *types.Market
}

// Config holds supervisor configuration.
type Config struct {
	Fetcher    Fetcher
	Subscriber Subscriber
	Cache      cache.Cache
	SlugPrefix string
	Poll       time.Duration
	Horizon    time.Duration
	Logger     *zap.Logger
}

// New creates a market lifecycle supervisor.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		fetcher:    cfg.Fetcher,
		subscriber: cfg.Subscriber,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
		slugPrefix: cfg.SlugPrefix,
		poll:       cfg.Poll,
		horizon:    cfg.Horizon,
		known:      make(map[string]*types.Market),
	}
}

// Current returns the currently selected market, or nil.
func (s *Supervisor) Current() *types.Market {
	return s.current
}

// Tick advances the supervisor one step: polls discovery if due, selects a
// market when none is active, and applies wall-clock transitions. At most
// one event is returned per tick.
func (s *Supervisor) Tick(ctx context.Context, now time.Time) (Event, *types.Market, error) {
	if s.lastPoll.IsZero() || now.Sub(s.lastPoll) >= s.poll {
		s.lastPoll = now
		err := s.refresh(ctx, now)
		if err != nil {
			// Discovery failure is not fatal; retry on the next poll.
			s.logger.Warn("discovery-poll-failed", zap.Error(err))
		}
	}

	if s.current == nil {
		return s.selectNext(ctx, now)
	}

	switch s.current.Status {
	case types.MarketUpcoming:
		if !now.Before(s.current.StartTime) {
			s.current.Status = types.MarketLive
			TransitionsTotal.WithLabelValues(string(types.MarketLive)).Inc()
			s.logger.Info("market-live",
				zap.String("slug", s.current.Slug),
				zap.Time("end-time", s.current.EndTime))
			return EventMarketLive, s.current, nil
		}
	case types.MarketLive:
		if !now.Before(s.current.EndTime) {
			s.current.Status = types.MarketEnded
			TransitionsTotal.WithLabelValues(string(types.MarketEnded)).Inc()
			s.logger.Info("market-ended", zap.String("slug", s.current.Slug))

			ended := s.current
			s.current = nil
			s.teardownSubscription(ctx)
			return EventMarketEnded, ended, nil
		}
	}

	return EventNone, nil, nil
}

// SelectMarket forces selection of a market by slug, bypassing automatic
// choice. Slugs pruned from the working set are still served from the
// discovery cache while their TTL lasts. Returns MarketNotFoundError when
// the slug is unknown everywhere.
func (s *Supervisor) SelectMarket(ctx context.Context, slug string, now time.Time) (*types.Market, error) {
	market, ok := s.known[slug]
	if !ok {
		market, ok = s.cachedMarket(slug)
		if ok {
			s.known[slug] = market
		}
	}
	if !ok {
		return nil, &types.MarketNotFoundError{Slug: slug}
	}

	err := s.adopt(ctx, market)
	if err != nil {
		return nil, err
	}

	return market, nil
}

// cachedMarket looks a slug up in the discovery cache.
func (s *Supervisor) cachedMarket(slug string) (*types.Market, bool) {
	if s.cache == nil {
		return nil, false
	}

	value, ok := s.cache.Get(slug)
	if !ok {
		return nil, false
	}

	market, ok := value.(*types.Market)
	return market, ok
}

// teardownSubscription drops the current token pair. Failure is logged only;
// the next adopt swaps the subscription anyway.
func (s *Supervisor) teardownSubscription(ctx context.Context) {
	if s.subscriber == nil {
		return
	}

	err := s.subscriber.SwapSubscription(ctx, nil)
	if err != nil {
		s.logger.Warn("subscription-teardown-failed", zap.Error(err))
	}
}

// refresh polls discovery and folds results into the known set.
func (s *Supervisor) refresh(ctx context.Context, now time.Time) error {
	markets, err := s.fetcher.FetchUpDownMarkets(ctx, s.slugPrefix, s.horizon, now)
	if err != nil {
		return err
	}

	for _, m := range markets {
		s.known[m.Slug] = m
		if s.cache != nil {
			s.cache.Set(m.Slug, m, marketCacheTTL)
		}
	}

	// Forget markets that have ended and are not the current one.
	for slug, m := range s.known {
		if m.Status == types.MarketEnded && (s.current == nil || s.current.Slug != slug) {
			delete(s.known, slug)
		}
	}

	return nil
}

// selectNext picks the earliest not-ended market and subscribes its pair.
func (s *Supervisor) selectNext(ctx context.Context, now time.Time) (Event, *types.Market, error) {
	candidates := make([]*types.Market, 0, len(s.known))
	for _, m := range s.known {
		if m.Status == types.MarketEnded || !now.Before(m.EndTime) {
			continue
		}
		candidates = append(candidates, m)
	}

	if len(candidates) == 0 {
		return EventNone, nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].StartTime.Before(candidates[j].StartTime)
	})

	next := candidates[0]
	err := s.adopt(ctx, next)
	if err != nil {
		return EventNone, nil, err
	}

	return EventMarketSelected, next, nil
}

// adopt makes a market current, swapping the feed subscription to its token
// pair. The old pair is torn down first so at most one pair is ever live.
func (s *Supervisor) adopt(ctx context.Context, market *types.Market) error {
	if s.subscriber != nil {
		err := s.subscriber.SwapSubscription(ctx, []string{market.UpTokenID, market.DownTokenID})
		if err != nil {
			return fmt.Errorf("swap subscription: %w", err)
		}
	}

	s.current = market
	TransitionsTotal.WithLabelValues("selected").Inc()

	s.logger.Info("market-selected",
		zap.String("slug", market.Slug),
		zap.String("status", string(market.Status)),
		zap.Time("start-time", market.StartTime),
		zap.Time("end-time", market.EndTime))

	return nil
}
