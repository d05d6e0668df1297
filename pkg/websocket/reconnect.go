package websocket

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig tunes the backoff applied when the market feed drops.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = 20%
}

// ReconnectManager retries a dropped feed connection with jittered
// exponential backoff. A disconnect mid-cycle must not hammer the endpoint:
// the delay grows by the multiplier up to MaxDelay and resets on success.
type ReconnectManager struct {
	cfg    ReconnectConfig
	logger *zap.Logger

	mu      sync.Mutex
	backoff time.Duration
}

// NewReconnectManager creates a reconnection manager.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	return &ReconnectManager{
		cfg:     cfg,
		logger:  logger,
		backoff: cfg.InitialDelay,
	}
}

// Reconnect retries connect until it succeeds or the context ends.
func (rm *ReconnectManager) Reconnect(ctx context.Context, connect func(context.Context) error) error {
	for {
		delay := rm.delay()

		rm.logger.Info("feed-reconnect-scheduled", zap.Duration("backoff", delay))
		ReconnectAttemptsTotal.Inc()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		err := connect(ctx)
		if err == nil {
			rm.Reset()
			rm.logger.Info("feed-reconnected")
			return nil
		}

		rm.logger.Warn("feed-reconnect-failed", zap.Error(err))
		ReconnectFailuresTotal.Inc()
		rm.grow()
	}
}

// Reset returns the backoff to its initial delay.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.backoff = rm.cfg.InitialDelay
}

// delay returns the current backoff with jitter applied.
func (rm *ReconnectManager) delay() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	jitter := 1.0 + rand.Float64()*rm.cfg.JitterPercent
	return time.Duration(float64(rm.backoff) * jitter)
}

// grow multiplies the backoff, capped at MaxDelay.
func (rm *ReconnectManager) grow() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	next := time.Duration(float64(rm.backoff) * rm.cfg.BackoffMultiplier)
	if next > rm.cfg.MaxDelay {
		next = rm.cfg.MaxDelay
	}
	rm.backoff = next
}
