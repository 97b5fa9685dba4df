// Package config loads the pipeline configuration from YAML with
// environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the validation pipeline.
type Config struct {
	Exchanges  ExchangesConfig  `yaml:"exchanges"`
	Cache      CacheConfig      `yaml:"cache"`
	Validation ValidationConfig `yaml:"validation"`
	Mining     MiningConfig     `yaml:"mining"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// ExchangesConfig controls the venue clients and the aggregator.
type ExchangesConfig struct {
	// Priority is the default venue traversal order for fallback fetches.
	Priority []string `yaml:"priority"`
	// RequestTimeout bounds every venue HTTP call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RequestsPerMinute is the per-venue sliding-window limit.
	RequestsPerMinute map[string]int `yaml:"requests_per_minute"`
	// BaseURLs overrides venue base URLs (tests point these at fixtures).
	BaseURLs map[string]string `yaml:"base_urls"`
	// AvailabilitySnapshot is the JSON file persisting the symbol
	// availability cache across restarts.
	AvailabilitySnapshot string `yaml:"availability_snapshot"`
}

// CacheConfig holds the TTLs of the three caches.
type CacheConfig struct {
	CandleTTL       time.Duration `yaml:"candle_ttl"`
	AvailabilityTTL time.Duration `yaml:"availability_ttl"`
	SummaryTTL      time.Duration `yaml:"summary_ttl"`
	// MaxFetchLimit is how many candles a cache miss fetches so later
	// narrower requests are served from memory.
	MaxFetchLimit int `yaml:"max_fetch_limit"`
	// DeriveEnabled turns on building coarse timeframes from finer base
	// candles. Off by default; the aggregation path is kept tested.
	DeriveEnabled bool `yaml:"derive_enabled"`
}

// ValidationConfig holds the fact-checking knobs.
type ValidationConfig struct {
	StopLossPct      float64       `yaml:"stop_loss_pct"`
	MinProfitPct     float64       `yaml:"min_profit_pct"`
	MaxWorkers       int           `yaml:"max_workers"`
	MaxSignalAgeDays int           `yaml:"max_signal_age_days"`
	WarnSignalAge    time.Duration `yaml:"warn_signal_age"`
	HorizonBuffer    int           `yaml:"horizon_buffer"`
}

// MiningConfig holds the combination miner knobs.
type MiningConfig struct {
	MinSamples      int           `yaml:"min_samples"`
	MinAccuracy     float64       `yaml:"min_accuracy"`
	MinComboSize    int           `yaml:"min_combo_size"`
	MaxComboSize    int           `yaml:"max_combo_size"`
	BatchSize       int           `yaml:"batch_size"`
	MaxCombinations int           `yaml:"max_combinations"`
	CrossTFWindow   time.Duration `yaml:"cross_tf_window"`
}

// DatabaseConfig configures the postgres connection pool.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// RedisConfig configures the optional miner summary cache backend. When Addr
// is empty the miner falls back to its in-process cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HTTPConfig configures the monitoring server.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the configuration used when no file overrides are given.
func Default() Config {
	return Config{
		Exchanges: ExchangesConfig{
			Priority: []string{
				"binance", "bybit", "okx", "kucoin", "gateio",
				"coinbase", "kraken", "tabdeal", "nobitex",
			},
			RequestTimeout:       10 * time.Second,
			RequestsPerMinute:    map[string]int{},
			BaseURLs:             map[string]string{},
			AvailabilitySnapshot: "data/symbol_availability.json",
		},
		Cache: CacheConfig{
			CandleTTL:       10 * time.Minute,
			AvailabilityTTL: 24 * time.Hour,
			SummaryTTL:      time.Hour,
			MaxFetchLimit:   1000,
			DeriveEnabled:   false,
		},
		Validation: ValidationConfig{
			StopLossPct:      5.0,
			MinProfitPct:     0.1,
			MaxWorkers:       10,
			MaxSignalAgeDays: 365,
			WarnSignalAge:    90 * 24 * time.Hour,
			HorizonBuffer:    5,
		},
		Mining: MiningConfig{
			MinSamples:      20,
			MinAccuracy:     60.0,
			MinComboSize:    2,
			MaxComboSize:    3,
			BatchSize:       500,
			MaxCombinations: 10000,
			CrossTFWindow:   time.Hour,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		HTTP: HTTPConfig{
			ListenAddr: ":8093",
		},
	}
}

// Load reads a YAML file over Default() and applies environment overrides.
// A missing path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnv(cfg), nil
			}
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return applyEnv(cfg), nil
}

// applyEnv overlays credentials that should not live in the YAML file.
func applyEnv(cfg Config) Config {
	if dsn := os.Getenv("SIGVET_PG_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("SIGVET_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("SIGVET_REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	return cfg
}
