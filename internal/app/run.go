package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.String("storage", a.cfg.StorageMode),
		zap.Float64("starting-cash", a.cfg.StartingCash),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("ws-url", a.cfg.PolymarketWSURL),
		zap.String("slug-prefix", a.cfg.MarketSlugPrefix))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	// Start HTTP server first so health probes answer during startup.
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	err := a.wsManager.Start()
	if err != nil {
		a.logger.Warn("websocket-initial-connect-failed",
			zap.String("note", "reconnect loop will keep retrying"),
			zap.Error(err))
	}

	a.wg.Add(1)
	go a.runEngine()

	a.wg.Add(1)
	go a.drainEvents()

	if a.opts.MarketSlug != "" {
		go a.pinMarket()
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runEngine() {
	defer a.wg.Done()
	a.engine.Run(a.ctx)
}

// drainEvents logs engine events at debug level. The publisher drops when
// this consumer lags, so a slow sink never stalls the engine.
func (a *App) drainEvents() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case ev := <-a.events.Events():
			a.logger.Debug("engine-event", zap.String("type", string(ev.Type)))
		}
	}
}

// pinMarket forces the bot onto a single market for debugging. Discovery
// may not have seen the slug yet at startup, so retry briefly.
func (a *App) pinMarket() {
	for attempt := 0; attempt < 6; attempt++ {
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(a.cfg.DiscoveryPollInterval):
		}

		err := a.engine.SelectMarket(a.ctx, a.opts.MarketSlug)
		if err == nil {
			a.logger.Info("market-pinned", zap.String("slug", a.opts.MarketSlug))
			return
		}

		a.logger.Warn("market-pin-attempt-failed",
			zap.String("slug", a.opts.MarketSlug),
			zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
