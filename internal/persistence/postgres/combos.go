package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sigvet/sigvet/internal/models"
)

type comboRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// UpsertTFCombo inserts a mined same-timeframe combination. Duplicate keys
// are expected on re-runs and swallowed.
func (r *comboRepo) UpsertTFCombo(ctx context.Context, combo models.TFCombo) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO tf_combos
			(signal_names, signal_names_hash, timeframe, accuracy, sample_count,
			 correct_predictions, avg_price_change, profit_factor, combo_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		pq.Array(combo.SignalNames), combo.SignalNamesHash, combo.Timeframe,
		combo.Accuracy, combo.SampleCount, combo.CorrectPredictions,
		combo.AvgPriceChange, combo.ProfitFactor, combo.ComboSize, combo.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("insert tf combo: %w", err)
	}
	return nil
}

func (r *comboRepo) ListTFCombos(ctx context.Context, tf models.Timeframe, minAccuracy float64) ([]models.TFCombo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, signal_names, signal_names_hash, timeframe, accuracy,
		       sample_count, correct_predictions, avg_price_change,
		       profit_factor, combo_size, created_at
		FROM tf_combos
		WHERE timeframe = $1 AND accuracy >= $2
		ORDER BY accuracy DESC, signal_names_hash`, tf, minAccuracy)
	if err != nil {
		return nil, fmt.Errorf("list tf combos: %w", err)
	}
	defer rows.Close()

	var combos []models.TFCombo
	for rows.Next() {
		var combo models.TFCombo
		var names pq.StringArray
		if err := rows.Scan(&combo.ID, &names, &combo.SignalNamesHash, &combo.Timeframe,
			&combo.Accuracy, &combo.SampleCount, &combo.CorrectPredictions,
			&combo.AvgPriceChange, &combo.ProfitFactor, &combo.ComboSize, &combo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tf combo: %w", err)
		}
		combo.SignalNames = []string(names)
		combos = append(combos, combo)
	}
	return combos, rows.Err()
}

// UpsertCrossTFCombo inserts a mined cross-timeframe combination, swallowing
// duplicates on the signature hash.
func (r *comboRepo) UpsertCrossTFCombo(ctx context.Context, combo models.CrossTFCombo) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO cross_tf_combos
			(combo_signature, signature_hash, signal_names, timeframes, accuracy,
			 sample_count, correct_predictions, avg_price_change, profit_factor,
			 combo_size, num_timeframes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query,
		combo.ComboSignature, combo.SignatureHash, pq.Array(combo.SignalNames),
		pq.Array(combo.Timeframes), combo.Accuracy, combo.SampleCount,
		combo.CorrectPredictions, combo.AvgPriceChange, combo.ProfitFactor,
		combo.ComboSize, combo.NumTimeframes, combo.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("insert cross tf combo: %w", err)
	}
	return nil
}

func (r *comboRepo) ListCrossTFCombos(ctx context.Context) ([]models.CrossTFCombo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, combo_signature, signature_hash, signal_names, timeframes,
		       accuracy, sample_count, correct_predictions, avg_price_change,
		       profit_factor, combo_size, num_timeframes, created_at
		FROM cross_tf_combos
		ORDER BY accuracy DESC, signature_hash`)
	if err != nil {
		return nil, fmt.Errorf("list cross tf combos: %w", err)
	}
	defer rows.Close()

	var combos []models.CrossTFCombo
	for rows.Next() {
		var combo models.CrossTFCombo
		var names, tfs pq.StringArray
		if err := rows.Scan(&combo.ID, &combo.ComboSignature, &combo.SignatureHash,
			&names, &tfs, &combo.Accuracy, &combo.SampleCount, &combo.CorrectPredictions,
			&combo.AvgPriceChange, &combo.ProfitFactor, &combo.ComboSize,
			&combo.NumTimeframes, &combo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cross tf combo: %w", err)
		}
		combo.SignalNames = []string(names)
		combo.Timeframes = []string(tfs)
		combos = append(combos, combo)
	}
	return combos, rows.Err()
}
