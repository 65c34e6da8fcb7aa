// Package pricecache puts a TTL cache in front of the polling client so
// bursts of identical chart queries collapse into one upstream request
// per TTL window.
package pricecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"
)

const defaultTTL = 60 * time.Second

// Stats is a point-in-time summary of the cache contents.
type Stats struct {
	TotalEntries   int `json:"total_entries"`
	ExpiredEntries int `json:"expired_entries"`
}

// Config holds the cache settings.
type Config struct {
	// Fetcher serves misses. Required.
	Fetcher ports.OHLCFetcher
	// Logger is required.
	Logger ports.Logger
	// TTL is the entry lifetime. Defaults to 60s.
	TTL time.Duration
}

// Cache is a TTL cache keyed by the full query, layered over an
// OHLCFetcher and implementing the same interface. Reading an expired
// entry evicts it; entries that expire unread stay in the map until
// ClearExpired, Clear, or overwrite, which is what Stats' expired
// count measures.
//
// The lock guards only the entry map, never an upstream call:
// concurrent misses on the same key fetch independently and the last
// result to arrive stays cached. Fetchers are free to call back into
// the cache without deadlocking.
type Cache struct {
	fetcher ports.OHLCFetcher
	logger  ports.Logger
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[ports.OHLCQuery]entry
}

type entry struct {
	candles   []domain.Candle
	expiresAt time.Time // last instant the entry is still fresh
}

// NewCache validates the config and applies defaults for unset fields.
func NewCache(cfg Config) (*Cache, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ports.ErrConfiguration)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfiguration)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Cache{
		fetcher: cfg.Fetcher,
		logger:  cfg.Logger,
		ttl:     cfg.TTL,
		now:     time.Now,
		entries: make(map[ports.OHLCQuery]entry),
	}, nil
}

// Get returns the cached window for q if present and fresh. An expired
// entry counts as a miss and is evicted on the spot.
func (c *Cache) Get(q ports.OHLCQuery) ([]domain.Candle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[q]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, q)
		return nil, false
	}
	return e.candles, true
}

// Set stores a window for q with a fresh TTL, replacing any previous
// entry.
func (c *Cache) Set(q ports.OHLCQuery, candles []domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[q] = entry{candles: candles, expiresAt: c.now().Add(c.ttl)}
}

// GetOHLC serves q from the cache, fetching upstream on a miss. A failed
// fetch stores nothing, so the next caller retries instead of reading a
// poisoned entry.
func (c *Cache) GetOHLC(ctx context.Context, q ports.OHLCQuery) ([]domain.Candle, error) {
	if candles, ok := c.Get(q); ok {
		c.logger.Debug(ctx, "OHLC cache hit", map[string]any{
			"instrument": q.Instrument.String(),
			"interval":   q.Interval,
			"limit":      q.Limit,
		})
		return candles, nil
	}

	c.logger.Debug(ctx, "OHLC cache miss", map[string]any{
		"instrument": q.Instrument.String(),
		"interval":   q.Interval,
		"limit":      q.Limit,
	})
	candles, err := c.fetcher.GetOHLC(ctx, q)
	if err != nil {
		return nil, err
	}
	c.Set(q, candles)
	return candles, nil
}

// GetOHLCMulti serves several instruments with the same window settings,
// one cache lookup or upstream fetch per instrument. Failures are
// reported per instrument so one bad pair does not void the batch.
func (c *Cache) GetOHLCMulti(ctx context.Context, instruments []domain.Instrument, q ports.OHLCQuery) (map[domain.Instrument][]domain.Candle, map[domain.Instrument]error) {
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

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) int {
	c.mu.Lock()
	removed := len(c.entries)
	c.entries = make(map[ports.OHLCQuery]entry)
	c.mu.Unlock()

	c.logger.Info(ctx, "OHLC cache cleared", map[string]any{"removed": removed})
	return removed
}

// ClearExpired drops only the entries past their TTL and returns how
// many were removed.
func (c *Cache) ClearExpired(ctx context.Context) int {
	c.mu.Lock()
	now := c.now()
	removed := 0
	for q, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, q)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug(ctx, "expired OHLC entries removed", map[string]any{"removed": removed})
	}
	return removed
}

// Stats reports entry counts, including entries already past their TTL.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	s := Stats{TotalEntries: len(c.entries)}
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			s.ExpiredEntries++
		}
	}
	return s
}

// RunJanitor sweeps expired entries every interval until ctx is
// canceled. Run it on its own goroutine.
func (c *Cache) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ClearExpired(ctx)
		}
	}
}
