package execution

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// clobAPI is the slice of OrderClient the live gateway needs.
type clobAPI interface {
	PlaceFOKBuy(ctx context.Context, tokenID string, shares, price float64) (*types.OrderSubmissionResponse, error)
	PlaceFOKSell(ctx context.Context, tokenID string, shares, price float64) (*types.OrderSubmissionResponse, error)
	GetOrder(ctx context.Context, orderID string) (*types.OrderQueryResponse, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// LiveGateway executes real FOK orders on the Polymarket CLOB. An order not
// confirmed filled within the fill timeout is cancelled and surfaced as an
// ExecutionTimeoutError; bookkeeping always uses the actual fill price and
// size reported by the exchange.
type LiveGateway struct {
	client       clobAPI
	fillTimeout  time.Duration
	pollInterval time.Duration
	logger       *zap.Logger

	mu           sync.Mutex
	ordersSent   int64
	ordersFilled int64
	timeouts     int64
	totalLatency time.Duration
	lastError    string
}

// LiveStats is a snapshot of gateway order statistics.
type LiveStats struct {
	OrdersSent     int64         `json:"ordersSent"`
	OrdersFilled   int64         `json:"ordersFilled"`
	Timeouts       int64         `json:"timeouts"`
	AverageLatency time.Duration `json:"averageLatency"`
	LastError      string        `json:"lastError,omitempty"`
}

// NewLiveGateway creates a live execution gateway.
func NewLiveGateway(client clobAPI, fillTimeout, pollInterval time.Duration, logger *zap.Logger) *LiveGateway {
	return &LiveGateway{
		client:       client,
		fillTimeout:  fillTimeout,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Mode returns the gateway's execution mode.
func (g *LiveGateway) Mode() string {
	return ModeLive
}

// Stats returns a snapshot of order statistics.
func (g *LiveGateway) Stats() LiveStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := LiveStats{
		OrdersSent:   g.ordersSent,
		OrdersFilled: g.ordersFilled,
		Timeouts:     g.timeouts,
		LastError:    g.lastError,
	}
	if g.ordersFilled > 0 {
		stats.AverageLatency = g.totalLatency / time.Duration(g.ordersFilled)
	}
	return stats
}

// Buy places a FOK buy and waits for fill confirmation.
func (g *LiveGateway) Buy(ctx context.Context, req *BuyRequest) (*types.Trade, error) {
	estCost := req.Shares * req.Price
	estFee := Fee(req.Shares, req.Price, req.FeeBps)
	if estCost+estFee > req.AvailableCash {
		OrdersRejectedTotal.WithLabelValues(ModeLive, "insufficient_funds").Inc()
		return nil, &types.InsufficientFundsError{
			Required:  estCost + estFee,
			Available: req.AvailableCash,
		}
	}

	start := time.Now()
	g.noteSent()

	resp, err := g.client.PlaceFOKBuy(ctx, req.TokenID, req.Shares, req.Price)
	if err != nil {
		g.noteError(err)
		return nil, err
	}

	fillPrice, fillShares, err := g.awaitFill(ctx, resp, req.Shares, req.Price, true)
	if err != nil {
		g.noteError(err)
		return nil, err
	}

	latency := time.Since(start)
	g.noteFilled(latency)
	OrdersFilledTotal.WithLabelValues(ModeLive, "buy").Inc()
	FillLatencySeconds.WithLabelValues(ModeLive).Observe(latency.Seconds())

	cost := fillShares * fillPrice
	trade := &types.Trade{
		ID:         uuid.NewString(),
		CycleID:    req.CycleID,
		MarketSlug: req.MarketSlug,
		Leg:        req.Leg,
		Side:       req.Side,
		TokenID:    req.TokenID,
		Shares:     fillShares,
		Price:      fillPrice,
		Cost:       cost,
		Fee:        Fee(fillShares, fillPrice, req.FeeBps),
		Live:       true,
		ExecutedAt: time.Now(),
	}

	g.logger.Info("live-buy-filled",
		zap.String("order-id", resp.OrderID),
		zap.String("side", string(req.Side)),
		zap.Float64("fill-price", fillPrice),
		zap.Float64("fill-shares", fillShares),
		zap.Duration("latency", latency))

	return trade, nil
}

// Sell places a FOK sell to flatten a position.
func (g *LiveGateway) Sell(ctx context.Context, req *SellRequest) (*SellResult, error) {
	start := time.Now()
	g.noteSent()

	resp, err := g.client.PlaceFOKSell(ctx, req.TokenID, req.Shares, req.Price)
	if err != nil {
		g.noteError(err)
		return nil, err
	}

	fillPrice, fillShares, err := g.awaitFill(ctx, resp, req.Shares, req.Price, false)
	if err != nil {
		g.noteError(err)
		return nil, err
	}

	latency := time.Since(start)
	g.noteFilled(latency)
	OrdersFilledTotal.WithLabelValues(ModeLive, "sell").Inc()
	FillLatencySeconds.WithLabelValues(ModeLive).Observe(latency.Seconds())

	fee := Fee(fillShares, fillPrice, req.FeeBps)
	proceeds := fillShares*fillPrice - fee

	trade := &types.Trade{
		ID:         uuid.NewString(),
		CycleID:    req.CycleID,
		MarketSlug: req.MarketSlug,
		Leg:        0, // flatten, not a cycle leg
		Side:       req.Side,
		TokenID:    req.TokenID,
		Shares:     -fillShares,
		Price:      fillPrice,
		Cost:       -proceeds,
		Fee:        fee,
		Live:       true,
		ExecutedAt: time.Now(),
	}

	g.logger.Info("live-sell-filled",
		zap.String("order-id", resp.OrderID),
		zap.Float64("fill-price", fillPrice),
		zap.Float64("proceeds", proceeds))

	return &SellResult{Trade: trade, Proceeds: proceeds}, nil
}

// awaitFill resolves the actual fill from the submission response, polling
// order status until the fill timeout, then cancelling.
func (g *LiveGateway) awaitFill(ctx context.Context, resp *types.OrderSubmissionResponse, reqShares, reqPrice float64, isBuy bool) (fillPrice, fillShares float64, err error) {
	if resp.Status == "matched" {
		// FOK matched immediately; amounts come back as raw strings.
		fillPrice, fillShares = fillFromAmounts(resp.MakingAmount, resp.TakingAmount, reqPrice, reqShares, isBuy)
		return fillPrice, fillShares, nil
	}

	deadline := time.Now().Add(g.fillTimeout)
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			break
		}

		order, err := g.client.GetOrder(ctx, resp.OrderID)
		if err != nil {
			g.logger.Warn("order-status-poll-failed",
				zap.String("order-id", resp.OrderID),
				zap.Error(err))
			continue
		}

		if order.Status == "matched" || order.SizeFilled >= reqShares {
			price := order.Price
			if price == 0 {
				price = reqPrice
			}
			shares := order.SizeFilled
			if shares == 0 {
				shares = reqShares
			}
			return price, shares, nil
		}
	}

	// Not filled in time: cancel, then report the timeout.
	cancelErr := g.client.CancelOrder(context.WithoutCancel(ctx), resp.OrderID)
	if cancelErr != nil {
		g.logger.Error("order-cancel-failed",
			zap.String("order-id", resp.OrderID),
			zap.Error(cancelErr))
	}

	g.mu.Lock()
	g.timeouts++
	g.mu.Unlock()
	OrderTimeoutsTotal.Inc()

	return 0, 0, &types.ExecutionTimeoutError{OrderID: resp.OrderID, Timeout: g.fillTimeout}
}

func (g *LiveGateway) noteSent() {
	g.mu.Lock()
	g.ordersSent++
	g.mu.Unlock()
	OrdersSentTotal.WithLabelValues(ModeLive).Inc()
}

func (g *LiveGateway) noteFilled(latency time.Duration) {
	g.mu.Lock()
	g.ordersFilled++
	g.totalLatency += latency
	g.mu.Unlock()
}

func (g *LiveGateway) noteError(err error) {
	g.mu.Lock()
	g.lastError = err.Error()
	g.mu.Unlock()
}

// fillFromAmounts derives the effective fill from the raw 6-decimal amounts
// in a matched submission response, falling back to the requested values
// when the exchange omits them. For a BUY the maker amount is USDC paid and
// the taker amount is tokens received; a SELL is the reverse.
func fillFromAmounts(makingAmount, takingAmount string, reqPrice, reqShares float64, isBuy bool) (price, shares float64) {
	making, errM := strconv.ParseFloat(makingAmount, 64)
	taking, errT := strconv.ParseFloat(takingAmount, 64)
	if errM != nil || errT != nil || making == 0 || taking == 0 {
		return reqPrice, reqShares
	}

	if isBuy {
		return making / taking, taking / 1e6
	}
	return taking / making, making / 1e6
}
