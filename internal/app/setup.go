package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/internal/engine"
	"github.com/msoriano-dev/updown-cycle-bot/internal/execution"
	"github.com/msoriano-dev/updown-cycle-bot/internal/lifecycle"
	"github.com/msoriano-dev/updown-cycle-bot/internal/portfolio"
	"github.com/msoriano-dev/updown-cycle-bot/internal/signal"
	"github.com/msoriano-dev/updown-cycle-bot/internal/storage"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/cache"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/config"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/healthprobe"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/httpserver"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/wallet"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/websocket"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()

	marketCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	wsManager := setupWebSocketManager(cfg, logger)
	supervisor := setupSupervisor(cfg, logger, wsManager, marketCache)

	store, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	factory := gatewayFactory(cfg, logger)
	gateway, err := factory(cfg.ExecutionMode)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup gateway: %w", err)
	}

	events := engine.NewPublisher(cfg.WSMessageBufferSize, logger)

	eng := engine.New(engine.Options{
		Config:     cfg,
		Logger:     logger,
		Tracker:    signal.New(cfg.MinValidPrice, logger),
		Ledger:     portfolio.NewLedger(cfg.StartingCash, logger),
		Gateway:    gateway,
		Factory:    factory,
		LiveCheck:  liveCheck(cfg, logger),
		Supervisor: supervisor,
		Store:      store,
		Feed:       wsManager.MessageChan(),
		Events:     events,
	})

	httpServer := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Controller:    eng,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		wsManager:     wsManager,
		supervisor:    supervisor,
		engine:        eng,
		events:        events,
		store:         store,
		opts:          opts,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupWebSocketManager(cfg *config.Config, logger *zap.Logger) *websocket.Manager {
	return websocket.New(websocket.Config{
		URL:                   cfg.PolymarketWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
}

func setupSupervisor(cfg *config.Config, logger *zap.Logger, wsManager *websocket.Manager, marketCache cache.Cache) *lifecycle.Supervisor {
	gammaClient := lifecycle.NewGammaClient(cfg.PolymarketGammaURL, cfg.DiscoveryPollInterval, logger)

	return lifecycle.New(lifecycle.Config{
		Fetcher:    gammaClient,
		Subscriber: wsManager,
		Cache:      marketCache,
		SlugPrefix: cfg.MarketSlugPrefix,
		Poll:       cfg.DiscoveryPollInterval,
		Horizon:    cfg.DiscoveryHorizon,
		Logger:     logger,
	})
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.StorageMode == "postgres" {
		pgStore, err := storage.NewPostgresStore(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres store: %w", err)
		}
		return pgStore, nil
	}

	return storage.NewConsoleStore(logger), nil
}

// gatewayFactory builds gateways on demand so the engine can switch modes
// at runtime. Live construction fails when CLOB credentials are missing.
func gatewayFactory(cfg *config.Config, logger *zap.Logger) engine.GatewayFactory {
	return func(mode string) (execution.Gateway, error) {
		switch mode {
		case execution.ModeSim, execution.ModeSimRealistic:
			return execution.NewSimulatedGateway(mode == execution.ModeSimRealistic, logger), nil
		case execution.ModeLive:
			if cfg.PolymarketPrivateKey == "" || cfg.PolymarketAPIKey == "" {
				return nil, fmt.Errorf("live mode requires POLYMARKET_PRIVATE_KEY and POLYMARKET_API_KEY")
			}

			orderClient, err := execution.NewOrderClient(&execution.OrderClientConfig{
				BaseURL:    cfg.PolymarketCLOBURL,
				APIKey:     cfg.PolymarketAPIKey,
				Secret:     cfg.PolymarketSecret,
				Passphrase: cfg.PolymarketPassphrase,
				PrivateKey: cfg.PolymarketPrivateKey,
				Logger:     logger,
			})
			if err != nil {
				return nil, fmt.Errorf("create order client: %w", err)
			}

			return execution.NewLiveGateway(orderClient, cfg.FillTimeout, cfg.FillPollEvery, logger), nil
		default:
			return nil, fmt.Errorf("unknown execution mode: %s", mode)
		}
	}
}

// liveCheck verifies wallet funding before a live-mode switch. Returns nil
// when no private key is configured, which blocks live mode entirely.
func liveCheck(cfg *config.Config, logger *zap.Logger) engine.LiveCheck {
	if cfg.PolymarketPrivateKey == "" {
		return nil
	}

	address, err := wallet.AddressFromPrivateKey(cfg.PolymarketPrivateKey)
	if err != nil {
		logger.Warn("live-check-disabled-invalid-key", zap.Error(err))
		return nil
	}

	walletClient, err := wallet.NewClient(cfg.PolygonRPCURL, logger)
	if err != nil {
		logger.Warn("live-check-disabled-wallet-client-failed", zap.Error(err))
		return nil
	}

	return func(ctx context.Context, requiredUSD float64) (bool, error) {
		return walletClient.CanFund(ctx, address, requiredUSD)
	}
}
