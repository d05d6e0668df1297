package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

func buyReq() *BuyRequest {
	return &BuyRequest{
		CycleID:       "cycle-1",
		MarketSlug:    "bitcoin-up-or-down-march-1-12pm-et",
		Leg:           1,
		Side:          types.SideUp,
		TokenID:       "tok-up",
		Shares:        10,
		Price:         0.45,
		AvailableCash: 1000,
	}
}

func TestSimulatedBuy_InstantFill(t *testing.T) {
	g := NewSimulatedGateway(false, zap.NewNop())

	trade, err := g.Buy(context.Background(), buyReq())
	require.NoError(t, err)

	assert.Equal(t, 0.45, trade.Price)
	assert.Equal(t, 10.0, trade.Shares)
	assert.Equal(t, 4.5, trade.Cost)
	assert.Equal(t, 0.0, trade.Fee)
	assert.False(t, trade.Live)
	assert.Equal(t, 1, trade.Leg)
	assert.NotEmpty(t, trade.ID)
}

func TestSimulatedBuy_FeeApplied(t *testing.T) {
	g := NewSimulatedGateway(false, zap.NewNop())

	req := buyReq()
	req.FeeBps = 100 // 1%

	trade, err := g.Buy(context.Background(), req)
	require.NoError(t, err)

	assert.InDelta(t, 0.045, trade.Fee, 1e-9)
}

func TestSimulatedBuy_InsufficientFunds(t *testing.T) {
	g := NewSimulatedGateway(false, zap.NewNop())

	req := buyReq()
	req.AvailableCash = 4.0 // cost is 4.5

	_, err := g.Buy(context.Background(), req)

	var fundsErr *types.InsufficientFundsError
	require.True(t, errors.As(err, &fundsErr))
	assert.Equal(t, 4.5, fundsErr.Required)
}

func TestSimulatedBuy_RealisticSlippage(t *testing.T) {
	g := NewSimulatedGateway(true, zap.NewNop())

	for range 20 {
		trade, err := g.Buy(context.Background(), buyReq())
		require.NoError(t, err)

		// Slippage is 0.5-2% against the taker.
		assert.GreaterOrEqual(t, trade.Price, 0.45*1.005)
		assert.LessOrEqual(t, trade.Price, 0.45*1.02)
	}
}

func TestSimulatedBuy_SlippageCapped(t *testing.T) {
	g := NewSimulatedGateway(true, zap.NewNop())

	req := buyReq()
	req.Price = 0.985

	trade, err := g.Buy(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, trade.Price, 0.99)
}

func TestSimulatedSell(t *testing.T) {
	g := NewSimulatedGateway(false, zap.NewNop())

	res, err := g.Sell(context.Background(), &SellRequest{
		CycleID:    "cycle-1",
		MarketSlug: "bitcoin-up-or-down-march-1-12pm-et",
		Side:       types.SideUp,
		TokenID:    "tok-up",
		Shares:     10,
		Price:      0.30,
	})
	require.NoError(t, err)

	assert.Equal(t, 3.0, res.Proceeds)
	assert.Equal(t, -10.0, res.Trade.Shares)
	assert.Equal(t, 0.30, res.Trade.Price)
}

func TestSimulatedSell_EmptyBookFillsAtZero(t *testing.T) {
	g := NewSimulatedGateway(false, zap.NewNop())

	res, err := g.Sell(context.Background(), &SellRequest{
		CycleID: "cycle-1",
		Side:    types.SideUp,
		TokenID: "tok-up",
		Shares:  10,
		Price:   0, // empty book
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Proceeds)
	assert.Equal(t, 0.0, res.Trade.Price)
}

func TestSimulatedModeNames(t *testing.T) {
	assert.Equal(t, ModeSim, NewSimulatedGateway(false, zap.NewNop()).Mode())
	assert.Equal(t, ModeSimRealistic, NewSimulatedGateway(true, zap.NewNop()).Mode())
}
