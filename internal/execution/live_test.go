package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

type fakeCLOB struct {
	submitResp  *types.OrderSubmissionResponse
	submitErr   error
	orderResp   *types.OrderQueryResponse
	orderErr    error
	cancelled   []string
	getCalls    int
	fillOnCall  int // GetOrder reports matched starting at this call count
}

func (f *fakeCLOB) PlaceFOKBuy(ctx context.Context, tokenID string, shares, price float64) (*types.OrderSubmissionResponse, error) {
	return f.submitResp, f.submitErr
}

func (f *fakeCLOB) PlaceFOKSell(ctx context.Context, tokenID string, shares, price float64) (*types.OrderSubmissionResponse, error) {
	return f.submitResp, f.submitErr
}

func (f *fakeCLOB) GetOrder(ctx context.Context, orderID string) (*types.OrderQueryResponse, error) {
	f.getCalls++
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	if f.fillOnCall > 0 && f.getCalls >= f.fillOnCall {
		return f.orderResp, nil
	}
	return &types.OrderQueryResponse{OrderID: orderID, Status: "live"}, nil
}

func (f *fakeCLOB) CancelOrder(ctx context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func TestLiveBuy_ImmediateMatch(t *testing.T) {
	clob := &fakeCLOB{
		submitResp: &types.OrderSubmissionResponse{
			Success:      true,
			OrderID:      "ord-1",
			Status:       "matched",
			MakingAmount: "4600000",  // $4.60 paid
			TakingAmount: "10000000", // 10 tokens received
		},
	}
	g := NewLiveGateway(clob, time.Second, 10*time.Millisecond, zap.NewNop())

	trade, err := g.Buy(context.Background(), buyReq())
	require.NoError(t, err)

	// Bookkeeping uses the actual fill, not the quoted 0.45.
	assert.InDelta(t, 0.46, trade.Price, 1e-9)
	assert.Equal(t, 10.0, trade.Shares)
	assert.True(t, trade.Live)

	stats := g.Stats()
	assert.Equal(t, int64(1), stats.OrdersSent)
	assert.Equal(t, int64(1), stats.OrdersFilled)
}

func TestLiveBuy_FilledAfterPolling(t *testing.T) {
	clob := &fakeCLOB{
		submitResp: &types.OrderSubmissionResponse{
			Success: true,
			OrderID: "ord-2",
			Status:  "live",
		},
		orderResp: &types.OrderQueryResponse{
			OrderID:    "ord-2",
			Status:     "matched",
			Price:      0.47,
			SizeFilled: 10,
		},
		fillOnCall: 2,
	}
	g := NewLiveGateway(clob, time.Second, 5*time.Millisecond, zap.NewNop())

	trade, err := g.Buy(context.Background(), buyReq())
	require.NoError(t, err)

	assert.Equal(t, 0.47, trade.Price)
	assert.Equal(t, 10.0, trade.Shares)
	assert.GreaterOrEqual(t, clob.getCalls, 2)
	assert.Empty(t, clob.cancelled)
}

func TestLiveBuy_TimeoutCancels(t *testing.T) {
	clob := &fakeCLOB{
		submitResp: &types.OrderSubmissionResponse{
			Success: true,
			OrderID: "ord-3",
			Status:  "live",
		},
	}
	g := NewLiveGateway(clob, 30*time.Millisecond, 5*time.Millisecond, zap.NewNop())

	_, err := g.Buy(context.Background(), buyReq())

	var timeoutErr *types.ExecutionTimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "ord-3", timeoutErr.OrderID)
	assert.Equal(t, []string{"ord-3"}, clob.cancelled)

	stats := g.Stats()
	assert.Equal(t, int64(1), stats.Timeouts)
	assert.NotEmpty(t, stats.LastError)
}

func TestLiveBuy_InsufficientFundsNoOrder(t *testing.T) {
	clob := &fakeCLOB{}
	g := NewLiveGateway(clob, time.Second, 5*time.Millisecond, zap.NewNop())

	req := buyReq()
	req.AvailableCash = 1.0

	_, err := g.Buy(context.Background(), req)

	var fundsErr *types.InsufficientFundsError
	require.True(t, errors.As(err, &fundsErr))
	assert.Equal(t, int64(0), g.Stats().OrdersSent)
}

func TestLiveSell_ImmediateMatch(t *testing.T) {
	clob := &fakeCLOB{
		submitResp: &types.OrderSubmissionResponse{
			Success: true,
			OrderID: "ord-4",
			Status:  "matched",
		},
	}
	g := NewLiveGateway(clob, time.Second, 5*time.Millisecond, zap.NewNop())

	res, err := g.Sell(context.Background(), &SellRequest{
		CycleID: "cycle-1",
		Side:    types.SideUp,
		TokenID: "tok-up",
		Shares:  10,
		Price:   0.30,
	})
	require.NoError(t, err)

	// No amounts in the response: fall back to the requested values.
	assert.Equal(t, 3.0, res.Proceeds)
	assert.Equal(t, -10.0, res.Trade.Shares)
}
