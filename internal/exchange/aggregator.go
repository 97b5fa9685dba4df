package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sigvet/sigvet/internal/metrics"
	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/singleflight"
)

const (
	// raceFanout is how many priority-ordered venues a race launches.
	raceFanout = 5
	// raceDeadline bounds how long a race waits for a winner.
	raceDeadline = 5 * time.Second
	// flightMaxAge is the watchdog cutoff for stuck in-flight fetches.
	flightMaxAge = 30 * time.Second
)

// ErrAllVenuesFailed is returned when no eligible venue produced a
// satisfying candle sequence.
var ErrAllVenuesFailed = errors.New("all venues failed or were skipped")

// AggregatorConfig wires venues and limits into an Aggregator.
type AggregatorConfig struct {
	// Priority is the default traversal order.
	Priority []string
	// RequestsPerMinute per venue; venues absent from the map get 60.
	RequestsPerMinute map[string]int
	// AvailabilityTTL for the symbol availability cache.
	AvailabilityTTL time.Duration
}

// Aggregator fans a canonical candle request out over venue clients in
// priority order, honoring rate limits, circuit breakers and symbol
// availability knowledge.
type Aggregator struct {
	clients      map[string]Client
	priority     []string
	windows      map[string]*RateWindow
	breakers     map[string]*gobreaker.CircuitBreaker
	availability *AvailabilityCache
	flight       *singleflight.Group
	metrics      *metrics.Metrics

	mu    sync.Mutex
	stats statsCounters
}

type statsCounters struct {
	attempts       int64
	successes      int64
	failures       int64
	symbolNotFound int64
	venues         map[string]*VenueStats
}

// VenueStats are the per-venue counters exposed for monitoring.
type VenueStats struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	NotFound  int64 `json:"not_found"`
}

// StatsSnapshot is the aggregator's monitoring structure.
type StatsSnapshot struct {
	Attempts       int64                  `json:"attempts"`
	Successes      int64                  `json:"successes"`
	Failures       int64                  `json:"failures"`
	SymbolNotFound int64                  `json:"symbol_not_found"`
	Venues         map[string]VenueStats  `json:"venues"`
	RateWindows    map[string]int         `json:"rate_windows"`
	InFlight       int                    `json:"in_flight"`
	TrackedSymbols int                    `json:"tracked_symbols"`
}

// NewAggregator builds an aggregator over the given clients. Priority
// entries without a registered client are dropped with a warning.
func NewAggregator(cfg AggregatorConfig, clients []Client, m *metrics.Metrics) *Aggregator {
	byName := make(map[string]Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}

	var priority []string
	for _, venue := range cfg.Priority {
		if _, ok := byName[venue]; !ok {
			log.Warn().Str("venue", venue).Msg("Priority venue has no client, skipping")
			continue
		}
		priority = append(priority, venue)
	}
	if len(priority) == 0 {
		for _, c := range clients {
			priority = append(priority, c.Name())
		}
	}

	windows := make(map[string]*RateWindow, len(priority))
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(priority))
	for _, venue := range priority {
		limit := cfg.RequestsPerMinute[venue]
		windows[venue] = NewRateWindow(limit)
		breakers[venue] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    venue,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("venue", name).
					Str("from", from.String()).Str("to", to.String()).
					Msg("Venue circuit breaker state change")
			},
		})
	}

	return &Aggregator{
		clients:      byName,
		priority:     priority,
		windows:      windows,
		breakers:     breakers,
		availability: NewAvailabilityCache(cfg.AvailabilityTTL),
		flight:       singleflight.NewGroup(),
		metrics:      m,
		stats:        statsCounters{venues: make(map[string]*VenueStats)},
	}
}

// Availability exposes the symbol availability cache for snapshot handling.
func (a *Aggregator) Availability() *AvailabilityCache { return a.availability }

// Priority returns the configured venue traversal order.
func (a *Aggregator) Priority() []string {
	return append([]string(nil), a.priority...)
}

// Client returns the registered client for a venue.
func (a *Aggregator) Client(venue string) (Client, bool) {
	c, ok := a.clients[venue]
	return c, ok
}

// FetchWithFallback tries eligible venues in priority order and returns the
// first satisfying candle sequence. Concurrent identical requests (same
// symbol and timeframe) share one traversal via single-flight.
func (a *Aggregator) FetchWithFallback(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	key := req.Symbol + "|" + string(req.Timeframe)
	val, shared, err := a.flight.Do(ctx, key, func() (interface{}, error) {
		return a.fetchFallback(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	candles := val.([]models.Candle)
	if shared {
		log.Debug().Str("key", key).Msg("Candle fetch joined in-flight request")
	}
	return candles, nil
}

func (a *Aggregator) fetchFallback(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	for _, venue := range a.candidates(req.Symbol) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candles, err := a.attemptVenue(ctx, venue, req)
		if err == nil && candles != nil {
			return candles, nil
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", req.Symbol, req.Timeframe, ErrAllVenuesFailed)
}

// candidates computes the traversal order: the priority list intersected
// with the known-available set when one exists, otherwise the full list.
func (a *Aggregator) candidates(symbol string) []string {
	available := a.availability.AvailableVenues(symbol)
	if len(available) == 0 {
		return a.priority
	}
	out := make([]string, 0, len(available))
	for _, venue := range a.priority {
		if _, ok := available[venue]; ok {
			out = append(out, venue)
		}
	}
	if len(out) == 0 {
		return a.priority
	}
	return out
}

// attemptVenue runs one venue attempt: saturation and availability checks,
// breaker-guarded fetch, rate-window charge, availability bookkeeping.
// A nil, nil return means the venue was skipped without a request.
func (a *Aggregator) attemptVenue(ctx context.Context, venue string, req CandleRequest) ([]models.Candle, error) {
	window := a.windows[venue]
	if window.Saturated() {
		a.metrics.IncRateSaturated(venue)
		return nil, nil
	}
	if a.availability.IsUnavailable(req.Symbol, venue) {
		return nil, nil
	}
	client, ok := a.clients[venue]
	if !ok {
		return nil, nil
	}

	a.countAttempt(venue)
	start := time.Now()

	var notFoundErr error
	result, err := a.breakers[venue].Execute(func() (interface{}, error) {
		candles, err := client.FetchCandles(ctx, req)
		if err != nil {
			window.Record()
			if IsSymbolNotFound(err) {
				// The venue answered; a missing listing must not trip
				// the breaker.
				notFoundErr = err
				return nil, nil
			}
			return nil, err
		}
		window.Record()
		return candles, nil
	})
	a.metrics.ObserveFetch(venue, time.Since(start).Seconds())

	if notFoundErr != nil {
		a.countNotFound(venue)
		a.availability.MarkUnavailable(req.Symbol, venue)
		log.Debug().Err(notFoundErr).Str("venue", venue).Str("symbol", req.Symbol).
			Msg("Symbol marked unavailable")
		return nil, notFoundErr
	}
	if err != nil {
		a.countFailure(venue)
		log.Debug().Err(err).Str("venue", venue).Str("symbol", req.Symbol).
			Str("timeframe", string(req.Timeframe)).Msg("Venue fetch failed")
		return nil, err
	}

	candles := result.([]models.Candle)
	if req.Limit > 0 && len(candles) < req.Limit {
		a.countFailure(venue)
		return nil, fmt.Errorf("%s: short response: got %d of %d candles", venue, len(candles), req.Limit)
	}

	a.countSuccess(venue)
	a.availability.MarkAvailable(req.Symbol, venue)
	return candles, nil
}

// FetchFrom fetches from one specific venue, bypassing the fallback chain
// but honoring its rate window and availability bookkeeping.
func (a *Aggregator) FetchFrom(ctx context.Context, venue string, req CandleRequest) ([]models.Candle, error) {
	if _, ok := a.clients[venue]; !ok {
		return nil, fmt.Errorf("unknown venue: %s", venue)
	}
	candles, err := a.attemptVenue(ctx, venue, req)
	if err != nil {
		return nil, err
	}
	if candles == nil {
		return nil, fmt.Errorf("%s: venue skipped (saturated or unavailable)", venue)
	}
	return candles, nil
}

// FetchRace launches the first raceFanout eligible venues concurrently and
// returns the first satisfying result. Losing requests are cancelled.
func (a *Aggregator) FetchRace(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, raceDeadline)
	defer cancel()

	venues := a.candidates(req.Symbol)
	if len(venues) > raceFanout {
		venues = venues[:raceFanout]
	}

	results := make(chan []models.Candle, len(venues))
	var wg sync.WaitGroup
	for _, venue := range venues {
		wg.Add(1)
		go func(venue string) {
			defer wg.Done()
			candles, err := a.attemptVenue(ctx, venue, req)
			if err == nil && candles != nil {
				select {
				case results <- candles:
				default:
				}
			}
		}(venue)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	select {
	case candles, ok := <-results:
		if !ok {
			return nil, fmt.Errorf("%s/%s: race: %w", req.Symbol, req.Timeframe, ErrAllVenuesFailed)
		}
		cancel() // abandon the losers
		return candles, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s/%s: race: %w", req.Symbol, req.Timeframe, ctx.Err())
	}
}

// FetchAll queries every eligible venue in parallel and returns the
// per-venue results that succeeded.
func (a *Aggregator) FetchAll(ctx context.Context, req CandleRequest) map[string][]models.Candle {
	type venueResult struct {
		venue   string
		candles []models.Candle
	}
	results := make(chan venueResult, len(a.priority))
	var wg sync.WaitGroup
	for _, venue := range a.priority {
		wg.Add(1)
		go func(venue string) {
			defer wg.Done()
			candles, err := a.attemptVenue(ctx, venue, req)
			if err == nil && candles != nil {
				results <- venueResult{venue: venue, candles: candles}
			}
		}(venue)
	}
	wg.Wait()
	close(results)

	out := make(map[string][]models.Candle)
	for r := range results {
		out[r.venue] = r.candles
	}
	return out
}

// PruneRateWindows drops stale rate-window stamps. Run periodically.
func (a *Aggregator) PruneRateWindows() {
	for _, w := range a.windows {
		w.Prune()
	}
}

// EvictStaleFlights removes in-flight dedupe entries older than the
// watchdog cutoff.
func (a *Aggregator) EvictStaleFlights() int {
	evicted := a.flight.EvictStale(flightMaxAge)
	if evicted > 0 {
		log.Warn().Int("evicted", evicted).Msg("Evicted stuck in-flight candle fetches")
	}
	return evicted
}

// Stats returns a copy of the aggregator counters.
func (a *Aggregator) Stats() StatsSnapshot {
	a.mu.Lock()
	snap := StatsSnapshot{
		Attempts:       a.stats.attempts,
		Successes:      a.stats.successes,
		Failures:       a.stats.failures,
		SymbolNotFound: a.stats.symbolNotFound,
		Venues:         make(map[string]VenueStats, len(a.stats.venues)),
	}
	for venue, vs := range a.stats.venues {
		snap.Venues[venue] = *vs
	}
	a.mu.Unlock()

	snap.RateWindows = make(map[string]int, len(a.windows))
	for venue, w := range a.windows {
		snap.RateWindows[venue] = w.Count()
	}
	snap.InFlight = a.flight.InFlight()
	snap.TrackedSymbols = a.availability.Len()
	return snap
}

func (a *Aggregator) venueStatsLocked(venue string) *VenueStats {
	vs, ok := a.stats.venues[venue]
	if !ok {
		vs = &VenueStats{}
		a.stats.venues[venue] = vs
	}
	return vs
}

func (a *Aggregator) countAttempt(venue string) {
	a.mu.Lock()
	a.stats.attempts++
	a.venueStatsLocked(venue).Attempts++
	a.mu.Unlock()
	a.metrics.IncVenueAttempt(venue)
}

func (a *Aggregator) countSuccess(venue string) {
	a.mu.Lock()
	a.stats.successes++
	a.venueStatsLocked(venue).Successes++
	a.mu.Unlock()
	a.metrics.IncVenueSuccess(venue)
}

func (a *Aggregator) countFailure(venue string) {
	a.mu.Lock()
	a.stats.failures++
	a.venueStatsLocked(venue).Failures++
	a.mu.Unlock()
	a.metrics.IncVenueFailure(venue)
}

func (a *Aggregator) countNotFound(venue string) {
	a.mu.Lock()
	a.stats.failures++
	a.stats.symbolNotFound++
	vs := a.venueStatsLocked(venue)
	vs.Failures++
	vs.NotFound++
	a.mu.Unlock()
	a.metrics.IncVenueFailure(venue)
	a.metrics.IncVenueNotFound(venue)
}
