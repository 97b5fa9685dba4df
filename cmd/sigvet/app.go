package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sigvet/sigvet/internal/candlecache"
	"github.com/sigvet/sigvet/internal/combos"
	"github.com/sigvet/sigvet/internal/config"
	"github.com/sigvet/sigvet/internal/db"
	"github.com/sigvet/sigvet/internal/exchange"
	"github.com/sigvet/sigvet/internal/metrics"
	"github.com/sigvet/sigvet/internal/pricedata"
)

// app bundles the market-data side of the pipeline shared by all commands.
type app struct {
	cfg        config.Config
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	aggregator *exchange.Aggregator
	cache      *candlecache.Cache
	journeys   *pricedata.Facade
}

// newApp loads configuration and wires the venue clients, the aggregator,
// the candle cache and the journey facade.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	clients := exchange.BuildClients(cfg.Exchanges)
	agg := exchange.NewAggregator(exchange.AggregatorConfig{
		Priority:          cfg.Exchanges.Priority,
		RequestsPerMinute: cfg.Exchanges.RequestsPerMinute,
		AvailabilityTTL:   cfg.Cache.AvailabilityTTL,
	}, clients, m)
	if path := cfg.Exchanges.AvailabilitySnapshot; path != "" {
		if err := agg.Availability().Load(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Availability snapshot not loaded")
		}
	}

	cache := candlecache.New(candlecache.Options{
		TTL:      cfg.Cache.CandleTTL,
		MaxLimit: cfg.Cache.MaxFetchLimit,
		Derive:   cfg.Cache.DeriveEnabled,
		Metrics:  m,
	})

	return &app{
		cfg:        cfg,
		registry:   registry,
		metrics:    m,
		aggregator: agg,
		cache:      cache,
		journeys:   pricedata.New(agg),
	}, nil
}

// openDB connects the persistence layer. Commands that touch the store call
// this and defer Close.
func (a *app) openDB() (*db.Manager, error) {
	mgr, err := db.Open(a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return mgr, nil
}

// summaryCache picks the miner cache backend: redis when configured, the
// in-process map otherwise.
func (a *app) summaryCache() combos.SummaryCache {
	if a.cfg.Redis.Addr == "" {
		return combos.NewMemorySummaryCache(a.cfg.Cache.SummaryTTL)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	return combos.NewRedisSummaryCache(client, a.cfg.Cache.SummaryTTL)
}
