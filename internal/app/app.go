package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/internal/engine"
	"github.com/msoriano-dev/updown-cycle-bot/internal/lifecycle"
	"github.com/msoriano-dev/updown-cycle-bot/internal/storage"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/config"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/healthprobe"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/httpserver"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/websocket"
)

// App wires the bot together: the websocket feed, the market supervisor,
// storage, the trading engine and the HTTP control surface.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	wsManager     *websocket.Manager
	supervisor    *lifecycle.Supervisor
	engine        *engine.Engine
	events        *engine.Publisher
	store         storage.Store
	opts          *Options
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	MarketSlug string // For debugging: pin the bot to a single market slug
}
