// Package candlecache keeps recently fetched candle series in memory keyed
// by (symbol, timeframe), with single-flight coordination so concurrent
// misses trigger exactly one upstream fetch.
package candlecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sigvet/sigvet/internal/metrics"
	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/singleflight"
)

// FetchFunc loads candles for a timeframe from upstream. The cache always
// requests maxLimit candles so narrower follow-up reads hit memory.
type FetchFunc func(ctx context.Context, tf models.Timeframe, limit int) ([]models.Candle, error)

type entry struct {
	candles    []models.Candle
	insertedAt time.Time
}

// Cache is a TTL candle store. The optional derived-timeframe path can
// synthesize a coarse timeframe from a finer base series; it is disabled by
// default and kept behind the Derive flag.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	ttl      time.Duration
	maxLimit int
	derive   bool
	flight   *singleflight.Group
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Options configure a Cache; zero values use the documented defaults
// (10 minute TTL, 1000-candle fills, derivation off).
type Options struct {
	TTL      time.Duration
	MaxLimit int
	Derive   bool
	Metrics  *metrics.Metrics
}

// New creates an empty cache.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 1000
	}
	return &Cache{
		entries:  make(map[string]*entry),
		ttl:      opts.TTL,
		maxLimit: opts.MaxLimit,
		derive:   opts.Derive,
		flight:   singleflight.NewGroup(),
		metrics:  opts.Metrics,
		now:      time.Now,
	}
}

func key(symbol string, tf models.Timeframe) string {
	return symbol + "|" + string(tf)
}

// Get returns the trailing `limit` candles for (symbol, timeframe),
// fetching through fetchFn on a miss. Concurrent misses for the same key
// share one fetch.
func (c *Cache) Get(ctx context.Context, symbol string, tf models.Timeframe, limit int, fetchFn FetchFunc) ([]models.Candle, error) {
	k := key(symbol, tf)
	if candles, ok := c.fresh(k); ok {
		c.metrics.IncCacheHit("candle")
		return tail(candles, limit), nil
	}
	c.metrics.IncCacheMiss("candle")

	val, shared, err := c.flight.Do(ctx, k, func() (interface{}, error) {
		// Re-check under the flight: another caller may have just filled it.
		if candles, ok := c.fresh(k); ok {
			return candles, nil
		}
		candles, err := c.fill(ctx, symbol, tf, fetchFn)
		if err != nil {
			return nil, err
		}
		return candles, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("key", k).Msg("Candle cache fill joined in-flight fetch")
	}
	return tail(val.([]models.Candle), limit), nil
}

// fill fetches the full series (maxLimit candles) and stores it. When the
// derived-timeframe path is enabled and the timeframe is a clean multiple of
// a finer supported one, the series is built by aggregating base candles.
func (c *Cache) fill(ctx context.Context, symbol string, tf models.Timeframe, fetchFn FetchFunc) ([]models.Candle, error) {
	if c.derive {
		if base, multiplier, ok := deriveBase(tf); ok {
			baseCandles, err := fetchFn(ctx, base, c.maxLimit)
			if err == nil && len(baseCandles) >= multiplier {
				derived := models.AggregateCandles(baseCandles, multiplier)
				c.store(key(symbol, tf), derived)
				return derived, nil
			}
			// fall through to a direct fetch on derivation failure
		}
	}
	candles, err := fetchFn(ctx, tf, c.maxLimit)
	if err != nil {
		return nil, fmt.Errorf("candle cache fill %s/%s: %w", symbol, tf, err)
	}
	c.store(key(symbol, tf), candles)
	return candles, nil
}

// deriveBase picks the finest timeframe that divides tf evenly. Only
// meaningful pairs are considered so a weekly series is not assembled from
// 10080 one-minute candles.
func deriveBase(tf models.Timeframe) (models.Timeframe, int, bool) {
	bases := map[models.Timeframe]models.Timeframe{
		models.TF2h: models.TF1h, models.TF4h: models.TF1h,
		models.TF6h: models.TF1h, models.TF8h: models.TF1h,
		models.TF12h: models.TF1h, models.TF3d: models.TF1d,
		models.TF1w: models.TF1d,
	}
	base, ok := bases[tf]
	if !ok {
		return "", 0, false
	}
	return base, tf.Minutes() / base.Minutes(), true
}

func (c *Cache) fresh(k string) ([]models.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	if !ok || c.now().Sub(e.insertedAt) > c.ttl {
		return nil, false
	}
	return e.candles, true
}

func (c *Cache) store(k string, candles []models.Candle) {
	c.mu.Lock()
	c.entries[k] = &entry{candles: candles, insertedAt: c.now()}
	c.mu.Unlock()
}

// Evict drops expired entries and returns how many were removed. Run on a
// one-minute cadence.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for k, e := range c.entries {
		if c.now().Sub(e.insertedAt) > c.ttl {
			delete(c.entries, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached series.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func tail(candles []models.Candle, limit int) []models.Candle {
	if limit <= 0 || limit >= len(candles) {
		return candles
	}
	return candles[len(candles)-limit:]
}
