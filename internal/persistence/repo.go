// Package persistence defines the narrow data-access interfaces the pipeline
// depends on. Postgres implementations live in the postgres subpackage; the
// memory subpackage backs tests and dry runs.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sigvet/sigvet/internal/models"
)

// ErrNotFound is returned by point lookups with no matching row.
var ErrNotFound = errors.New("not found")

// UncheckedQuery narrows the unchecked-signal listing.
type UncheckedQuery struct {
	Symbol string // optional; empty matches all symbols
	Limit  int    // optional; 0 means no limit
}

// SignalRepo reads the signal definition catalog.
type SignalRepo interface {
	Get(ctx context.Context, signalName string, tf models.Timeframe) (*models.SignalDefinition, error)
	List(ctx context.Context) ([]models.SignalDefinition, error)
}

// LiveSignalRepo reads detected signals awaiting fact-checks.
type LiveSignalRepo interface {
	// ListUnchecked returns signals with no corresponding fact-check record
	// (anti-join on signal name, timeframe and detection instant), ordered
	// ascending by detection time with ties broken by id.
	ListUnchecked(ctx context.Context, q UncheckedQuery) ([]models.LiveSignal, error)
}

// FactCheckRepo is the append-only outcome log.
type FactCheckRepo interface {
	Insert(ctx context.Context, fc models.FactCheck) error
	CountBySignal(ctx context.Context, signalName string, tf models.Timeframe) (int, error)
	// ListBySignal returns fact-checks for one (signal, timeframe) pair in
	// descending detection order, at most limit rows (0 = all).
	ListBySignal(ctx context.Context, signalName string, tf models.Timeframe, limit int) ([]models.FactCheck, error)
	ListByTimeframe(ctx context.Context, tf models.Timeframe) ([]models.FactCheck, error)
	DistinctSignalNames(ctx context.Context, tf models.Timeframe) ([]string, error)
	DistinctPairs(ctx context.Context) ([]models.SignalTimeframe, error)
	// ExistsNear reports whether a fact-check for the pair exists within
	// the tolerance window around t.
	ExistsNear(ctx context.Context, signalName string, tf models.Timeframe, t time.Time, window time.Duration) (bool, error)
}

// ConfidenceRepo upserts one adjustment row per (signal, timeframe).
type ConfidenceRepo interface {
	Upsert(ctx context.Context, adj models.ConfidenceAdjustment) error
	Get(ctx context.Context, signalName string, tf models.Timeframe) (*models.ConfidenceAdjustment, error)
}

// ComboRepo stores mined combinations under unique-key constraints.
// Duplicate inserts are silently ignored — re-runs are expected.
type ComboRepo interface {
	UpsertTFCombo(ctx context.Context, combo models.TFCombo) error
	ListTFCombos(ctx context.Context, tf models.Timeframe, minAccuracy float64) ([]models.TFCombo, error)
	UpsertCrossTFCombo(ctx context.Context, combo models.CrossTFCombo) error
	ListCrossTFCombos(ctx context.Context) ([]models.CrossTFCombo, error)
}

// Repository bundles the per-entity repos for constructor wiring.
type Repository struct {
	Signals     SignalRepo
	LiveSignals LiveSignalRepo
	FactChecks  FactCheckRepo
	Confidence  ConfidenceRepo
	Combos      ComboRepo
}
