package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReconnectBackoffGrowsAndResets(t *testing.T) {
	rm := NewReconnectManager(ReconnectConfig{
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          40 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterPercent:     0,
	}, zap.NewNop())

	rm.grow()
	assert.Equal(t, 20*time.Millisecond, rm.backoff)

	rm.grow()
	rm.grow()
	assert.Equal(t, 40*time.Millisecond, rm.backoff)

	rm.Reset()
	assert.Equal(t, 10*time.Millisecond, rm.backoff)
}

func TestReconnectSucceedsAfterFailures(t *testing.T) {
	rm := NewReconnectManager(ReconnectConfig{
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterPercent:     0,
	}, zap.NewNop())

	attempts := 0
	err := rm.Reconnect(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("dial refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// Success resets the backoff for the next outage.
	assert.Equal(t, time.Millisecond, rm.backoff)
}

func TestReconnectStopsOnContextCancel(t *testing.T) {
	rm := NewReconnectManager(ReconnectConfig{
		InitialDelay:      time.Hour,
		MaxDelay:          time.Hour,
		BackoffMultiplier: 2.0,
		JitterPercent:     0,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rm.Reconnect(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
