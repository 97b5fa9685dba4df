package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/persistence"
)

type signalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *signalRepo) Get(ctx context.Context, signalName string, tf models.Timeframe) (*models.SignalDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var def models.SignalDefinition
	query := `
		SELECT signal_name, timeframe, category, validation_window,
		       base_accuracy, base_confidence, sample_size, updated_at
		FROM signals
		WHERE signal_name = $1 AND timeframe = $2`
	if err := r.db.GetContext(ctx, &def, query, signalName, tf); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("get signal definition: %w", err)
	}
	return &def, nil
}

func (r *signalRepo) List(ctx context.Context) ([]models.SignalDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var defs []models.SignalDefinition
	query := `
		SELECT signal_name, timeframe, category, validation_window,
		       base_accuracy, base_confidence, sample_size, updated_at
		FROM signals
		ORDER BY signal_name, timeframe`
	if err := r.db.SelectContext(ctx, &defs, query); err != nil {
		return nil, fmt.Errorf("list signal definitions: %w", err)
	}
	return defs, nil
}

type liveSignalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// ListUnchecked anti-joins live signals against the fact-check log on
// (signal_name, timeframe, detection instant) and returns the remainder in
// ascending detection order, ties broken by id.
func (r *liveSignalRepo) ListUnchecked(ctx context.Context, q persistence.UncheckedQuery) ([]models.LiveSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ls.id, ls.signal_name, ls.timeframe, ls.symbol, ls.signal_type,
		       ls.confidence, ls.strength, ls.signal_value, ls.price, ls.ts
		FROM live_signals ls
		WHERE NOT EXISTS (
			SELECT 1 FROM signal_fact_checks fc
			WHERE fc.signal_name = ls.signal_name
			  AND fc.timeframe = ls.timeframe
			  AND fc.detected_at = ls.ts
		)`
	args := []interface{}{}
	if q.Symbol != "" {
		args = append(args, q.Symbol)
		query += fmt.Sprintf(" AND ls.symbol = $%d", len(args))
	}
	query += " ORDER BY ls.ts ASC, ls.id ASC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var signals []models.LiveSignal
	if err := r.db.SelectContext(ctx, &signals, query, args...); err != nil {
		return nil, fmt.Errorf("list unchecked signals: %w", err)
	}
	return signals, nil
}
