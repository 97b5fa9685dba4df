package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sigvet/sigvet/internal/models"
)

type factCheckRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Insert appends one outcome. A duplicate (signal, timeframe, detected_at)
// is swallowed — the record already exists from a previous run.
func (r *factCheckRepo) Insert(ctx context.Context, fc models.FactCheck) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO signal_fact_checks
			(signal_name, timeframe, detected_at, price_at_detection,
			 actual_move, predicted_correctly, price_change_pct, exit_reason,
			 candles_elapsed, validation_window, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query,
		fc.SignalName, fc.Timeframe, fc.DetectedAt, fc.PriceAtDetection,
		fc.ActualMove, fc.PredictedCorrectly, fc.PriceChangePct, fc.ExitReason,
		fc.CandlesElapsed, fc.ValidationWindow, fc.CheckedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("insert fact check: %w", err)
	}
	return nil
}

func (r *factCheckRepo) CountBySignal(ctx context.Context, signalName string, tf models.Timeframe) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int
	query := `SELECT COUNT(*) FROM signal_fact_checks WHERE signal_name = $1 AND timeframe = $2`
	if err := r.db.GetContext(ctx, &count, query, signalName, tf); err != nil {
		return 0, fmt.Errorf("count fact checks: %w", err)
	}
	return count, nil
}

func (r *factCheckRepo) ListBySignal(ctx context.Context, signalName string, tf models.Timeframe, limit int) ([]models.FactCheck, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, signal_name, timeframe, detected_at, price_at_detection,
		       actual_move, predicted_correctly, price_change_pct, exit_reason,
		       candles_elapsed, validation_window, checked_at
		FROM signal_fact_checks
		WHERE signal_name = $1 AND timeframe = $2
		ORDER BY detected_at DESC`
	args := []interface{}{signalName, tf}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var fcs []models.FactCheck
	if err := r.db.SelectContext(ctx, &fcs, query, args...); err != nil {
		return nil, fmt.Errorf("list fact checks by signal: %w", err)
	}
	return fcs, nil
}

func (r *factCheckRepo) ListByTimeframe(ctx context.Context, tf models.Timeframe) ([]models.FactCheck, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, signal_name, timeframe, detected_at, price_at_detection,
		       actual_move, predicted_correctly, price_change_pct, exit_reason,
		       candles_elapsed, validation_window, checked_at
		FROM signal_fact_checks
		WHERE timeframe = $1
		ORDER BY detected_at ASC, signal_name ASC`
	var fcs []models.FactCheck
	if err := r.db.SelectContext(ctx, &fcs, query, tf); err != nil {
		return nil, fmt.Errorf("list fact checks by timeframe: %w", err)
	}
	return fcs, nil
}

func (r *factCheckRepo) DistinctSignalNames(ctx context.Context, tf models.Timeframe) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var names []string
	query := `SELECT DISTINCT signal_name FROM signal_fact_checks WHERE timeframe = $1 ORDER BY signal_name`
	if err := r.db.SelectContext(ctx, &names, query, tf); err != nil {
		return nil, fmt.Errorf("distinct signal names: %w", err)
	}
	return names, nil
}

func (r *factCheckRepo) DistinctPairs(ctx context.Context) ([]models.SignalTimeframe, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var pairs []models.SignalTimeframe
	query := `
		SELECT DISTINCT signal_name, timeframe
		FROM signal_fact_checks
		ORDER BY signal_name, timeframe`
	if err := r.db.SelectContext(ctx, &pairs, query); err != nil {
		return nil, fmt.Errorf("distinct signal pairs: %w", err)
	}
	return pairs, nil
}

func (r *factCheckRepo) ExistsNear(ctx context.Context, signalName string, tf models.Timeframe, t time.Time, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM signal_fact_checks
			WHERE signal_name = $1 AND timeframe = $2
			  AND detected_at BETWEEN $3 AND $4
		)`
	if err := r.db.GetContext(ctx, &exists, query, signalName, tf, t.Add(-window), t.Add(window)); err != nil {
		return false, fmt.Errorf("fact check exists near: %w", err)
	}
	return exists, nil
}
