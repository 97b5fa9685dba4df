// Package scheduler runs the periodic housekeeping tasks behind a serving
// pipeline: rate-window pruning, cache eviction, in-flight watchdog and
// availability snapshots.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sigvet/sigvet/internal/candlecache"
	"github.com/sigvet/sigvet/internal/exchange"
)

const (
	pruneInterval    = 10 * time.Second
	evictInterval    = time.Minute
	watchdogInterval = 10 * time.Second
	snapshotInterval = 10 * time.Minute
)

// Scheduler owns the background loops. Start launches them; Stop cancels and
// waits, then writes a final availability snapshot.
type Scheduler struct {
	aggregator   *exchange.Aggregator
	cache        *candlecache.Cache
	snapshotPath string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler; an empty snapshotPath disables snapshots.
func New(agg *exchange.Aggregator, cache *candlecache.Cache, snapshotPath string) *Scheduler {
	return &Scheduler{aggregator: agg, cache: cache, snapshotPath: snapshotPath}
}

// Start launches the housekeeping loops.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.loop(ctx, pruneInterval, func() {
		s.aggregator.PruneRateWindows()
	})
	s.loop(ctx, watchdogInterval, func() {
		if evicted := s.aggregator.EvictStaleFlights(); evicted > 0 {
			log.Warn().Int("evicted", evicted).Msg("Evicted stale in-flight fetches")
		}
	})
	if s.cache != nil {
		s.loop(ctx, evictInterval, func() {
			if evicted := s.cache.Evict(); evicted > 0 {
				log.Debug().Int("evicted", evicted).Msg("Evicted expired candle entries")
			}
		})
	}
	if s.snapshotPath != "" {
		s.loop(ctx, snapshotInterval, s.saveSnapshot)
	}
}

// Stop cancels the loops, waits for them and persists a final snapshot.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.snapshotPath != "" {
		s.saveSnapshot()
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, task func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task()
			}
		}
	}()
}

func (s *Scheduler) saveSnapshot() {
	if err := s.aggregator.Availability().Save(s.snapshotPath); err != nil {
		log.Warn().Err(err).Str("path", s.snapshotPath).Msg("Availability snapshot failed")
	}
}
