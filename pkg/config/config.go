package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// Strategy holds the trading parameters an operator may change at runtime.
// A copy is immutable for the duration of a tick; updates are applied
// between ticks through ApplyUpdate.
type Strategy struct {
	Shares         float64 // shares bought per leg
	SumTarget      float64 // hedge fires when leg1 price + opposite ask <= this
	MoveThreshold  float64 // fractional drawdown that triggers leg 1
	MoveWindowSec  int     // drawdown evaluation window
	WatchWindowMin int     // minutes after market start during which leg 1 may fire
	FeeBps         int     // taker fee in basis points
}

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Polymarket API
	PolymarketWSURL      string
	PolymarketGammaURL   string
	PolymarketCLOBURL    string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketPrivateKey string
	PolygonRPCURL        string

	// Market discovery
	DiscoveryPollInterval time.Duration
	DiscoveryHorizon      time.Duration
	MarketSlugPrefix      string

	// WebSocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Engine
	TickInterval           time.Duration
	EquitySnapshotInterval time.Duration
	MinValidPrice          float64
	StartingCash           float64
	Strategy               Strategy

	// Execution
	ExecutionMode string // "sim", "sim-realistic" or "live"
	FillTimeout   time.Duration
	FillPollEvery time.Duration

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		PolymarketWSURL:      getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketCLOBURL:    getEnvOrDefault("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey: os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolygonRPCURL:        getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),

		DiscoveryPollInterval: getDurationOrDefault("DISCOVERY_POLL_INTERVAL", 10*time.Second),
		DiscoveryHorizon:      getDurationOrDefault("DISCOVERY_HORIZON", time.Hour),
		MarketSlugPrefix:      getEnvOrDefault("MARKET_SLUG_PREFIX", "bitcoin-up-or-down"),

		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		TickInterval:           getDurationOrDefault("TICK_INTERVAL", 100*time.Millisecond),
		EquitySnapshotInterval: getDurationOrDefault("EQUITY_SNAPSHOT_INTERVAL", 30*time.Second),
		MinValidPrice:          getFloat64OrDefault("MIN_VALID_PRICE", 0.02),
		StartingCash:           getFloat64OrDefault("STARTING_CASH", 1000.0),

		Strategy: Strategy{
			Shares:         getFloat64OrDefault("STRATEGY_SHARES", 10.0),
			SumTarget:      getFloat64OrDefault("STRATEGY_SUM_TARGET", 0.95),
			MoveThreshold:  getFloat64OrDefault("STRATEGY_MOVE_THRESHOLD", 0.15),
			MoveWindowSec:  getIntOrDefault("STRATEGY_MOVE_WINDOW_SEC", 10),
			WatchWindowMin: getIntOrDefault("STRATEGY_WATCH_WINDOW_MIN", 2),
			FeeBps:         getIntOrDefault("STRATEGY_FEE_BPS", 0),
		},

		ExecutionMode: getEnvOrDefault("EXECUTION_MODE", "sim"),
		FillTimeout:   getDurationOrDefault("FILL_TIMEOUT", 10*time.Second),
		FillPollEvery: getDurationOrDefault("FILL_POLL_INTERVAL", 500*time.Millisecond),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "updown"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "updown123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "updown_cycle"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.PolymarketWSURL == "" {
		return fmt.Errorf("POLYMARKET_WS_URL cannot be empty")
	}

	if c.PolymarketGammaURL == "" {
		return fmt.Errorf("POLYMARKET_GAMMA_API_URL cannot be empty")
	}

	if c.ExecutionMode != "sim" && c.ExecutionMode != "sim-realistic" && c.ExecutionMode != "live" {
		return fmt.Errorf("EXECUTION_MODE must be 'sim', 'sim-realistic' or 'live', got %q", c.ExecutionMode)
	}

	if c.MinValidPrice <= 0 || c.MinValidPrice >= 1.0 {
		return fmt.Errorf("MIN_VALID_PRICE must be between 0 and 1.0, got %f", c.MinValidPrice)
	}

	if c.StartingCash < 0 {
		return fmt.Errorf("STARTING_CASH cannot be negative, got %f", c.StartingCash)
	}

	return c.Strategy.Validate()
}

// Validate checks that strategy parameters are valid.
func (s *Strategy) Validate() error {
	if s.Shares <= 0 {
		return &types.ValidationError{Field: "shares", Reason: fmt.Sprintf("must be positive, got %g", s.Shares)}
	}
	if s.SumTarget <= 0 || s.SumTarget >= 2.0 {
		return &types.ValidationError{Field: "sumTarget", Reason: fmt.Sprintf("must be in (0, 2.0), got %g", s.SumTarget)}
	}
	if s.MoveThreshold <= 0 || s.MoveThreshold >= 1.0 {
		return &types.ValidationError{Field: "moveThreshold", Reason: fmt.Sprintf("must be in (0, 1.0), got %g", s.MoveThreshold)}
	}
	if s.MoveWindowSec <= 0 {
		return &types.ValidationError{Field: "moveWindowSec", Reason: fmt.Sprintf("must be positive, got %d", s.MoveWindowSec)}
	}
	if s.WatchWindowMin <= 0 || s.WatchWindowMin > 15 {
		return &types.ValidationError{Field: "watchWindowMin", Reason: fmt.Sprintf("must be in [1, 15], got %d", s.WatchWindowMin)}
	}
	if s.FeeBps < 0 || s.FeeBps > 10000 {
		return &types.ValidationError{Field: "feeBps", Reason: fmt.Sprintf("must be in [0, 10000], got %d", s.FeeBps)}
	}
	return nil
}

// ApplyUpdate applies one operator-supplied key/value update against the
// allow-list of runtime-tunable fields. Unknown keys and mistyped values
// are rejected with a ValidationError; nothing is silently coerced.
func (s *Strategy) ApplyUpdate(key, value string) error {
	next := *s

	switch key {
	case "shares":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &types.ValidationError{Field: key, Reason: fmt.Sprintf("not a number: %q", value)}
		}
		next.Shares = v
	case "sumTarget":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &types.ValidationError{Field: key, Reason: fmt.Sprintf("not a number: %q", value)}
		}
		next.SumTarget = v
	case "moveThreshold":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &types.ValidationError{Field: key, Reason: fmt.Sprintf("not a number: %q", value)}
		}
		next.MoveThreshold = v
	case "moveWindowSec":
		v, err := strconv.Atoi(value)
		if err != nil {
			return &types.ValidationError{Field: key, Reason: fmt.Sprintf("not an integer: %q", value)}
		}
		next.MoveWindowSec = v
	case "watchWindowMin":
		v, err := strconv.Atoi(value)
		if err != nil {
			return &types.ValidationError{Field: key, Reason: fmt.Sprintf("not an integer: %q", value)}
		}
		next.WatchWindowMin = v
	case "feeBps":
		v, err := strconv.Atoi(value)
		if err != nil {
			return &types.ValidationError{Field: key, Reason: fmt.Sprintf("not an integer: %q", value)}
		}
		next.FeeBps = v
	default:
		return &types.ValidationError{Field: key, Reason: "unknown config key"}
	}

	err := next.Validate()
	if err != nil {
		return err
	}

	*s = next
	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
