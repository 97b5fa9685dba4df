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

type confidenceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *confidenceRepo) Upsert(ctx context.Context, adj models.ConfidenceAdjustment) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO signal_confidence_adjustments
			(signal_name, timeframe, original_confidence, adjusted_confidence,
			 accuracy_rate, sample_size, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (signal_name, timeframe) DO UPDATE SET
			original_confidence = EXCLUDED.original_confidence,
			adjusted_confidence = EXCLUDED.adjusted_confidence,
			accuracy_rate = EXCLUDED.accuracy_rate,
			sample_size = EXCLUDED.sample_size,
			last_updated = EXCLUDED.last_updated`
	_, err := r.db.ExecContext(ctx, query,
		adj.SignalName, adj.Timeframe, adj.OriginalConfidence, adj.AdjustedConfidence,
		adj.AccuracyRate, adj.SampleSize, adj.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert confidence adjustment: %w", err)
	}
	return nil
}

func (r *confidenceRepo) Get(ctx context.Context, signalName string, tf models.Timeframe) (*models.ConfidenceAdjustment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var adj models.ConfidenceAdjustment
	query := `
		SELECT signal_name, timeframe, original_confidence, adjusted_confidence,
		       accuracy_rate, sample_size, last_updated
		FROM signal_confidence_adjustments
		WHERE signal_name = $1 AND timeframe = $2`
	if err := r.db.GetContext(ctx, &adj, query, signalName, tf); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("get confidence adjustment: %w", err)
	}
	return &adj, nil
}
