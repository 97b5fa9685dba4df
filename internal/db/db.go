// Package db manages the postgres connection pool and repository wiring.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/sigvet/sigvet/internal/config"
	"github.com/sigvet/sigvet/internal/persistence"
	"github.com/sigvet/sigvet/internal/persistence/postgres"
)

// Manager owns the connection pool and the repository set built on it.
type Manager struct {
	db    *sqlx.DB
	repos *persistence.Repository
}

// Open connects to postgres, configures the pool and pings it.
func Open(cfg config.DatabaseConfig) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required (set SIGVET_PG_DSN)")
	}

	pool, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Manager{
		db:    pool,
		repos: postgres.NewRepository(pool, cfg.QueryTimeout),
	}, nil
}

// Repos returns the repository set.
func (m *Manager) Repos() *persistence.Repository { return m.repos }

// Healthy pings the pool with a short deadline.
func (m *Manager) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return m.db.PingContext(ctx) == nil
}

// Close releases the pool.
func (m *Manager) Close() error { return m.db.Close() }
