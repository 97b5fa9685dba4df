// Package combos mines signal combinations out of the fact-check history:
// same-timeframe co-occurrence subsets and cross-timeframe matches within a
// tolerance window.
package combos

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SignalSummary is the cached per-signal digest used to pre-filter mining
// candidates across repeated runs.
type SignalSummary struct {
	Accuracy     float64   `json:"accuracy"`
	SampleSize   int       `json:"sample_size"`
	ProfitFactor float64   `json:"profit_factor"`
	Timestamp    time.Time `json:"timestamp"`
}

// SummaryCache stores signal summaries keyed by "signalName|timeframe".
type SummaryCache interface {
	Get(ctx context.Context, key string) (SignalSummary, bool)
	Set(ctx context.Context, key string, summary SignalSummary)
}

// memorySummaryCache is the in-process fallback backend.
type memorySummaryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]SignalSummary
	now     func() time.Time
}

// NewMemorySummaryCache builds the in-process backend; ttl <= 0 defaults to
// one hour.
func NewMemorySummaryCache(ttl time.Duration) SummaryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &memorySummaryCache{
		ttl:     ttl,
		entries: make(map[string]SignalSummary),
		now:     time.Now,
	}
}

func (c *memorySummaryCache) Get(_ context.Context, key string) (SignalSummary, bool) {
	c.mu.RLock()
	summary, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(summary.Timestamp) > c.ttl {
		return SignalSummary{}, false
	}
	return summary, true
}

func (c *memorySummaryCache) Set(_ context.Context, key string, summary SignalSummary) {
	c.mu.Lock()
	c.entries[key] = summary
	c.mu.Unlock()
}

// redisSummaryCache shares summaries across processes. Failures degrade to
// cache misses; mining never depends on redis being up.
type redisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSummaryCache builds the redis backend over an existing client.
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration) SummaryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisSummaryCache{client: client, ttl: ttl}
}

func (c *redisSummaryCache) Get(ctx context.Context, key string) (SignalSummary, bool) {
	raw, err := c.client.Get(ctx, "sigvet:summary:"+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Summary cache read failed")
		}
		return SignalSummary{}, false
	}
	var summary SignalSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return SignalSummary{}, false
	}
	return summary, true
}

func (c *redisSummaryCache) Set(ctx context.Context, key string, summary SignalSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, "sigvet:summary:"+key, raw, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Summary cache write failed")
	}
}
