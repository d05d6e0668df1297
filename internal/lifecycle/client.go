package lifecycle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

const fetchLimit = 100

// GammaClient is a rate-limited HTTP client for the Polymarket Gamma API.
// Discovery runs on every supervisor poll, so the limiter caps request rate
// independently of how often the engine ticks.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewGammaClient creates a new Gamma API client. The limiter allows one
// request per pollInterval with a burst of one.
func NewGammaClient(baseURL string, pollInterval time.Duration, logger *zap.Logger) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(pollInterval), 1),
		logger:  logger,
	}
}

// FetchUpDownMarkets fetches active markets whose slug matches the up/down
// pattern and whose window starts inside the horizon. Markets are returned
// soonest-ending first, mirroring the API sort order.
func (c *GammaClient) FetchUpDownMarkets(ctx context.Context, slugPrefix string, horizon time.Duration, now time.Time) ([]*types.Market, error) {
	if !c.limiter.Allow() {
		RateLimitedRequestsTotal.Inc()
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/markets", c.baseURL)

	params := url.Values{}
	params.Add("closed", "false")
	params.Add("active", "true")
	params.Add("limit", strconv.Itoa(fetchLimit))
	params.Add("order", "endDate")
	params.Add("ascending", "true")

	requestURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "updown-cycle-bot/1.0")

	c.logger.Debug("fetching-markets", zap.String("url", requestURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		DiscoveryErrorsTotal.Inc()
		return nil, &types.NetworkError{Op: "gamma fetch markets", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		DiscoveryErrorsTotal.Inc()
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// Gamma returns a direct array, not a wrapped object.
	var gammaMarkets []types.GammaMarket
	err = json.Unmarshal(body, &gammaMarkets)
	if err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	deadline := now.Add(horizon)
	markets := make([]*types.Market, 0, len(gammaMarkets))
	for i := range gammaMarkets {
		gm := &gammaMarkets[i]
		if !strings.HasPrefix(gm.Slug, slugPrefix) {
			continue
		}

		market, ok := gm.ToMarket(now)
		if !ok {
			continue
		}

		if market.StartTime.After(deadline) {
			continue
		}

		markets = append(markets, market)
	}

	MarketsDiscovered.Set(float64(len(markets)))

	c.logger.Debug("fetched-updown-markets",
		zap.Int("total", len(gammaMarkets)),
		zap.Int("matching", len(markets)))

	return markets, nil
}
