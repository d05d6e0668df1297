package execution

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

const (
	realisticMinLatency = 80 * time.Millisecond
	realisticMaxLatency = 200 * time.Millisecond
	realisticMinSlip    = 0.005
	realisticMaxSlip    = 0.02
	maxFillPrice        = 0.99
)

// SimulatedGateway fills orders against the quoted price. In realistic mode
// it adds randomized latency and adverse slippage to approximate taker
// execution on a thin book.
type SimulatedGateway struct {
	realistic bool
	rng       *rand.Rand
	logger    *zap.Logger
}

// NewSimulatedGateway creates a paper-trading gateway. When realistic is
// true, fills are delayed 80-200ms and slipped 0.5-2% against the taker.
// The fee rate travels on each request, so config updates apply to the
// next order without rebuilding the gateway.
func NewSimulatedGateway(realistic bool, logger *zap.Logger) *SimulatedGateway {
	return &SimulatedGateway{
		realistic: realistic,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger,
	}
}

// Mode returns the gateway's execution mode.
func (g *SimulatedGateway) Mode() string {
	if g.realistic {
		return ModeSimRealistic
	}
	return ModeSim
}

// Buy fills instantly at the quoted ask, or with latency and upward slippage
// in realistic mode.
func (g *SimulatedGateway) Buy(ctx context.Context, req *BuyRequest) (*types.Trade, error) {
	start := time.Now()

	fillPrice := req.Price
	if g.realistic {
		err := g.sleep(ctx)
		if err != nil {
			return nil, err
		}
		fillPrice = g.slipUp(fillPrice)
	}

	cost := req.Shares * fillPrice
	fee := Fee(req.Shares, fillPrice, req.FeeBps)

	if cost+fee > req.AvailableCash {
		OrdersRejectedTotal.WithLabelValues(g.Mode(), "insufficient_funds").Inc()
		return nil, &types.InsufficientFundsError{
			Required:  cost + fee,
			Available: req.AvailableCash,
		}
	}

	trade := &types.Trade{
		ID:         uuid.NewString(),
		CycleID:    req.CycleID,
		MarketSlug: req.MarketSlug,
		Leg:        req.Leg,
		Side:       req.Side,
		TokenID:    req.TokenID,
		Shares:     req.Shares,
		Price:      fillPrice,
		Cost:       cost,
		Fee:        fee,
		Live:       false,
		ExecutedAt: time.Now(),
	}

	OrdersFilledTotal.WithLabelValues(g.Mode(), "buy").Inc()
	FillLatencySeconds.WithLabelValues(g.Mode()).Observe(time.Since(start).Seconds())

	g.logger.Info("simulated-buy-filled",
		zap.String("side", string(req.Side)),
		zap.Float64("shares", req.Shares),
		zap.Float64("quoted-price", req.Price),
		zap.Float64("fill-price", fillPrice),
		zap.Float64("cost", cost))

	return trade, nil
}

// Sell fills instantly at the quoted bid, or with latency and downward
// slippage in realistic mode. A zero bid fills at zero.
func (g *SimulatedGateway) Sell(ctx context.Context, req *SellRequest) (*SellResult, error) {
	start := time.Now()

	fillPrice := req.Price
	if g.realistic {
		err := g.sleep(ctx)
		if err != nil {
			return nil, err
		}
		if fillPrice > 0 {
			fillPrice = g.slipDown(fillPrice)
		}
	}

	proceeds := req.Shares * fillPrice
	fee := Fee(req.Shares, fillPrice, req.FeeBps)
	proceeds -= fee

	trade := &types.Trade{
		ID:         uuid.NewString(),
		CycleID:    req.CycleID,
		MarketSlug: req.MarketSlug,
		Leg:        0, // flatten, not a cycle leg
		Side:       req.Side,
		TokenID:    req.TokenID,
		Shares:     -req.Shares,
		Price:      fillPrice,
		Cost:       -proceeds,
		Fee:        fee,
		Live:       false,
		ExecutedAt: time.Now(),
	}

	OrdersFilledTotal.WithLabelValues(g.Mode(), "sell").Inc()
	FillLatencySeconds.WithLabelValues(g.Mode()).Observe(time.Since(start).Seconds())

	g.logger.Info("simulated-sell-filled",
		zap.String("side", string(req.Side)),
		zap.Float64("shares", req.Shares),
		zap.Float64("fill-price", fillPrice),
		zap.Float64("proceeds", proceeds))

	return &SellResult{Trade: trade, Proceeds: proceeds}, nil
}

func (g *SimulatedGateway) sleep(ctx context.Context) error {
	span := realisticMaxLatency - realisticMinLatency
	delay := realisticMinLatency + time.Duration(g.rng.Int63n(int64(span)))

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *SimulatedGateway) slipUp(price float64) float64 {
	slip := realisticMinSlip + g.rng.Float64()*(realisticMaxSlip-realisticMinSlip)
	slipped := price * (1 + slip)
	if slipped > maxFillPrice {
		slipped = maxFillPrice
	}
	return slipped
}

func (g *SimulatedGateway) slipDown(price float64) float64 {
	slip := realisticMinSlip + g.rng.Float64()*(realisticMaxSlip-realisticMinSlip)
	slipped := price * (1 - slip)
	if slipped < 0 {
		slipped = 0
	}
	return slipped
}
