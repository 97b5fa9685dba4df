// Package metrics exposes the pipeline's prometheus instrumentation. All
// helpers are nil-safe so wiring metrics stays optional in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors shared by the aggregator, the caches, the
// orchestrator and the miner.
type Metrics struct {
	VenueAttempts  *prometheus.CounterVec
	VenueSuccesses *prometheus.CounterVec
	VenueFailures  *prometheus.CounterVec
	VenueNotFound  *prometheus.CounterVec
	FetchLatency   *prometheus.HistogramVec

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	FactChecks    *prometheus.CounterVec
	CombosStored  *prometheus.CounterVec
	RateSaturated *prometheus.CounterVec
}

// New registers the pipeline collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VenueAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvet_venue_attempts_total",
			Help: "Fetch attempts per venue, including failures.",
		}, []string{"venue"}),
		VenueSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvet_venue_successes_total",
			Help: "Successful candle fetches per venue.",
		}, []string{"venue"}),
		VenueFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvet_venue_failures_total",
			Help: "Failed candle fetches per venue.",
		}, []string{"venue"}),
		VenueNotFound: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvet_venue_symbol_not_found_total",
			Help: "Fetches classified as symbol-not-supported per venue.",
		}, []string{"venue"}),
		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sigvet_venue_fetch_seconds",
			Help:    "Venue fetch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"venue"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvet_cache_hits_total",
			Help: "Cache hits by cache name.",
		}, []string{"cache"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvet_cache_misses_total",
			Help: "Cache misses by cache name.",
		}, []string{"cache"}),
		FactChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvet_fact_checks_total",
			Help: "Fact-check outcomes by result (correct, incorrect, stopped_out).",
		}, []string{"result"}),
		CombosStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvet_combos_stored_total",
			Help: "Qualifying combinations persisted by kind (tf, cross_tf).",
		}, []string{"kind"}),
		RateSaturated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvet_rate_window_skips_total",
			Help: "Venue skips due to rate-window saturation.",
		}, []string{"venue"}),
	}
}

func (m *Metrics) IncVenueAttempt(venue string) {
	if m != nil {
		m.VenueAttempts.WithLabelValues(venue).Inc()
	}
}

func (m *Metrics) IncVenueSuccess(venue string) {
	if m != nil {
		m.VenueSuccesses.WithLabelValues(venue).Inc()
	}
}

func (m *Metrics) IncVenueFailure(venue string) {
	if m != nil {
		m.VenueFailures.WithLabelValues(venue).Inc()
	}
}

func (m *Metrics) IncVenueNotFound(venue string) {
	if m != nil {
		m.VenueNotFound.WithLabelValues(venue).Inc()
	}
}

func (m *Metrics) ObserveFetch(venue string, seconds float64) {
	if m != nil {
		m.FetchLatency.WithLabelValues(venue).Observe(seconds)
	}
}

func (m *Metrics) IncCacheHit(cache string) {
	if m != nil {
		m.CacheHits.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) IncCacheMiss(cache string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) IncFactCheck(result string) {
	if m != nil {
		m.FactChecks.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncComboStored(kind string) {
	if m != nil {
		m.CombosStored.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncRateSaturated(venue string) {
	if m != nil {
		m.RateSaturated.WithLabelValues(venue).Inc()
	}
}
