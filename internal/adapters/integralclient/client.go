package integralclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"

	simplejson "github.com/bitly/go-simplejson"
)

const (
	defaultBaseURL        = "https://gpcintegral.southeastasia.cloudapp.azure.com"
	ohlcPath              = "/livechart/data/"
	defaultRequestTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultRetryDelay     = 2 * time.Second
	maxResponseBytes      = 10 * 1024 * 1024
)

// Config holds the polling client settings.
type Config struct {
	// BaseURL is the provider root. Defaults to the production endpoint.
	BaseURL string
	// Logger is required.
	Logger ports.Logger
	// RequestTimeout bounds a single HTTP attempt. Defaults to 10s.
	RequestTimeout time.Duration
	// MaxAttempts is the total number of tries per request. Defaults to 3.
	MaxAttempts int
	// RetryDelay is the fixed wait between attempts. Defaults to 2s.
	RetryDelay time.Duration
}

// Client fetches OHLC history from the provider's polling endpoint.
// It implements ports.OHLCFetcher.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	logger      ports.Logger
	maxAttempts int
	retryDelay  time.Duration
}

// New creates a polling client, applying defaults for unset fields.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid base URL %q: %w", ports.ErrConfiguration, cfg.BaseURL, err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:     cfg.BaseURL,
		logger:      cfg.Logger,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

// GetOHLC fetches candle history for one instrument. Every failed
// attempt, undecodable payloads included, consumes the retry budget with
// a fixed delay between tries; context cancellation stops the retry loop
// immediately.
func (c *Client) GetOHLC(ctx context.Context, q ports.OHLCQuery) ([]domain.Candle, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}

		candles, err := c.fetchOnce(ctx, q)
		if err == nil {
			return candles, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
		}
		lastErr = err
		c.logger.Warn(ctx, "OHLC fetch attempt failed", map[string]any{
			"instrument":  q.Instrument.String(),
			"attempt":     attempt,
			"maxAttempts": c.maxAttempts,
			"error":       err.Error(),
		})
	}

	return nil, fmt.Errorf("%w: fetching OHLC for %s failed after %d attempts: %w", ports.ErrUpstream, q.Instrument, c.maxAttempts, lastErr)
}

// GetOHLCMulti fetches candle history for several instruments concurrently.
// The Instrument field of q is ignored; each listed instrument is queried
// with the remaining parameters. Failures are reported per instrument so
// one bad pair does not void the batch.
func (c *Client) GetOHLCMulti(ctx context.Context, instruments []domain.Instrument, q ports.OHLCQuery) (map[domain.Instrument][]domain.Candle, map[domain.Instrument]error) {
	results := make(map[domain.Instrument][]domain.Candle, len(instruments))
	failures := make(map[domain.Instrument]error)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, instrument := range instruments {
		wg.Add(1)
		go func(instrument domain.Instrument) {
			defer wg.Done()
			pairQuery := q
			pairQuery.Instrument = instrument
			candles, err := c.GetOHLC(ctx, pairQuery)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[instrument] = err
				return
			}
			results[instrument] = candles
		}(instrument)
	}
	wg.Wait()

	return results, failures
}

func (c *Client) fetchOnce(ctx context.Context, q ports.OHLCQuery) ([]domain.Candle, error) {
	endpoint := c.baseURL + ohlcPath + "?" + queryParams(q).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ports.ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ports.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ports.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ports.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ports.ErrUpstream, resp.StatusCode)
	}

	return parseOHLCResponse(body, q.Instrument)
}

func parseOHLCResponse(body []byte, instrument domain.Instrument) ([]domain.Candle, error) {
	root, err := simplejson.NewJson(body)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON response: %w", ports.ErrMalformedMessage, err)
	}

	items, count, err := extractCandleItems(root)
	if err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, count)
	for i := 0; i < count; i++ {
		candle, err := parseCandle(items.GetIndex(i), instrument)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func queryParams(q ports.OHLCQuery) url.Values {
	params := url.Values{}
	params.Set("trading_pairs", q.Instrument.String())
	params.Set("timezone", "UTC")
	params.Set("interval", strconv.Itoa(q.Interval))
	params.Set("sort", string(q.Sort))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	return params
}

func validateQuery(q ports.OHLCQuery) error {
	if !q.Instrument.Valid() {
		return fmt.Errorf("%w: unknown instrument %q", ports.ErrInvalidRequest, string(q.Instrument))
	}
	if q.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ports.ErrInvalidRequest, q.Interval)
	}
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ports.ErrInvalidRequest, q.Limit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative, got %d", ports.ErrInvalidRequest, q.Offset)
	}
	if q.Sort != domain.SortAsc && q.Sort != domain.SortDesc {
		return fmt.Errorf("%w: sort must be %q or %q, got %q", ports.ErrInvalidRequest, domain.SortAsc, domain.SortDesc, string(q.Sort))
	}
	return nil
}
