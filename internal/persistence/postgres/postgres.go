// Package postgres implements the persistence interfaces on PostgreSQL via
// sqlx. Schema lives in schema.sql.
package postgres

import (
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sigvet/sigvet/internal/persistence"
)

// uniqueViolation is the postgres error code for duplicate keys.
const uniqueViolation = "23505"

// isDuplicateKey reports whether err is a unique-constraint violation.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// NewRepository wires all postgres repos over one connection pool.
func NewRepository(db *sqlx.DB, timeout time.Duration) *persistence.Repository {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &persistence.Repository{
		Signals:     &signalRepo{db: db, timeout: timeout},
		LiveSignals: &liveSignalRepo{db: db, timeout: timeout},
		FactChecks:  &factCheckRepo{db: db, timeout: timeout},
		Confidence:  &confidenceRepo{db: db, timeout: timeout},
		Combos:      &comboRepo{db: db, timeout: timeout},
	}
}
