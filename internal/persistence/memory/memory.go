// Package memory provides in-process implementations of the persistence
// interfaces. Tests and dry runs use them in place of postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/persistence"
)

// Store holds all entities behind one mutex and implements every repo
// interface.
type Store struct {
	mu          sync.RWMutex
	signals     []models.SignalDefinition
	liveSignals []models.LiveSignal
	factChecks  []models.FactCheck
	confidence  map[string]models.ConfidenceAdjustment
	tfCombos    map[string]models.TFCombo
	crossCombos map[string]models.CrossTFCombo
	nextID      int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		confidence:  make(map[string]models.ConfidenceAdjustment),
		tfCombos:    make(map[string]models.TFCombo),
		crossCombos: make(map[string]models.CrossTFCombo),
		nextID:      1,
	}
}

// Repository bundles the store as a persistence.Repository. The confidence
// repo needs a thin adapter because its Get signature differs from the
// signal catalog's.
func (s *Store) Repository() *persistence.Repository {
	return &persistence.Repository{
		Signals:     s,
		LiveSignals: s,
		FactChecks:  s,
		Confidence:  confidenceRepo{s},
		Combos:      s,
	}
}

type confidenceRepo struct{ s *Store }

func (r confidenceRepo) Upsert(ctx context.Context, adj models.ConfidenceAdjustment) error {
	return r.s.Upsert(ctx, adj)
}

func (r confidenceRepo) Get(ctx context.Context, signalName string, tf models.Timeframe) (*models.ConfidenceAdjustment, error) {
	return r.s.GetAdjustment(ctx, signalName, tf)
}

// SeedSignals loads signal definitions.
func (s *Store) SeedSignals(defs ...models.SignalDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, defs...)
}

// SeedLiveSignals loads detected signals.
func (s *Store) SeedLiveSignals(signals ...models.LiveSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range signals {
		if sig.ID == 0 {
			sig.ID = s.nextID
			s.nextID++
		}
		s.liveSignals = append(s.liveSignals, sig)
	}
}

// SeedFactChecks loads historical fact-checks, bypassing uniqueness checks.
func (s *Store) SeedFactChecks(fcs ...models.FactCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fc := range fcs {
		if fc.ID == 0 {
			fc.ID = s.nextID
			s.nextID++
		}
		s.factChecks = append(s.factChecks, fc)
	}
}

func (s *Store) Get(ctx context.Context, signalName string, tf models.Timeframe) (*models.SignalDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, def := range s.signals {
		if def.SignalName == signalName && def.Timeframe == tf {
			d := def
			return &d, nil
		}
	}
	return nil, persistence.ErrNotFound
}

func (s *Store) List(ctx context.Context) ([]models.SignalDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SignalDefinition(nil), s.signals...), nil
}

func (s *Store) ListUnchecked(ctx context.Context, q persistence.UncheckedQuery) ([]models.LiveSignal, error) {
	s.mu.RLock()
	checked := make(map[string]struct{}, len(s.factChecks))
	for _, fc := range s.factChecks {
		checked[fcKey(fc.SignalName, fc.Timeframe, fc.DetectedAt)] = struct{}{}
	}
	var out []models.LiveSignal
	for _, sig := range s.liveSignals {
		if q.Symbol != "" && sig.Symbol != q.Symbol {
			continue
		}
		if _, done := checked[fcKey(sig.SignalName, sig.Timeframe, sig.Timestamp)]; done {
			continue
		}
		out = append(out, sig)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func fcKey(name string, tf models.Timeframe, at time.Time) string {
	return name + "|" + string(tf) + "|" + at.UTC().Format(time.RFC3339Nano)
}

func (s *Store) Insert(ctx context.Context, fc models.FactCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.factChecks {
		if existing.SignalName == fc.SignalName && existing.Timeframe == fc.Timeframe &&
			existing.DetectedAt.Equal(fc.DetectedAt) {
			// unique per (signal, timeframe, detectedAt); re-checks are no-ops
			return nil
		}
	}
	fc.ID = s.nextID
	s.nextID++
	s.factChecks = append(s.factChecks, fc)
	return nil
}

func (s *Store) CountBySignal(ctx context.Context, signalName string, tf models.Timeframe) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, fc := range s.factChecks {
		if fc.SignalName == signalName && fc.Timeframe == tf {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListBySignal(ctx context.Context, signalName string, tf models.Timeframe, limit int) ([]models.FactCheck, error) {
	s.mu.RLock()
	var out []models.FactCheck
	for _, fc := range s.factChecks {
		if fc.SignalName == signalName && fc.Timeframe == tf {
			out = append(out, fc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListByTimeframe(ctx context.Context, tf models.Timeframe) ([]models.FactCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FactCheck
	for _, fc := range s.factChecks {
		if fc.Timeframe == tf {
			out = append(out, fc)
		}
	}
	return out, nil
}

func (s *Store) DistinctSignalNames(ctx context.Context, tf models.Timeframe) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, fc := range s.factChecks {
		if fc.Timeframe == tf {
			seen[fc.SignalName] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) DistinctPairs(ctx context.Context) ([]models.SignalTimeframe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]models.SignalTimeframe)
	for _, fc := range s.factChecks {
		key := fc.SignalName + "@" + string(fc.Timeframe)
		seen[key] = models.SignalTimeframe{SignalName: fc.SignalName, Timeframe: fc.Timeframe}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]models.SignalTimeframe, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out, nil
}

func (s *Store) ExistsNear(ctx context.Context, signalName string, tf models.Timeframe, t time.Time, window time.Duration) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fc := range s.factChecks {
		if fc.SignalName != signalName || fc.Timeframe != tf {
			continue
		}
		delta := fc.DetectedAt.Sub(t)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Upsert(ctx context.Context, adj models.ConfidenceAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confidence[adj.SignalName+"|"+string(adj.Timeframe)] = adj
	return nil
}

func (s *Store) GetAdjustment(ctx context.Context, signalName string, tf models.Timeframe) (*models.ConfidenceAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adj, ok := s.confidence[signalName+"|"+string(tf)]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &adj, nil
}

func (s *Store) UpsertTFCombo(ctx context.Context, combo models.TFCombo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := combo.SignalNamesHash + "|" + string(combo.Timeframe)
	if _, exists := s.tfCombos[key]; exists {
		return nil
	}
	combo.ID = s.nextID
	s.nextID++
	s.tfCombos[key] = combo
	return nil
}

func (s *Store) ListTFCombos(ctx context.Context, tf models.Timeframe, minAccuracy float64) ([]models.TFCombo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TFCombo
	for _, combo := range s.tfCombos {
		if combo.Timeframe == tf && combo.Accuracy >= minAccuracy {
			out = append(out, combo)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Join(out[i].SignalNames, "+") < strings.Join(out[j].SignalNames, "+")
	})
	return out, nil
}

func (s *Store) UpsertCrossTFCombo(ctx context.Context, combo models.CrossTFCombo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.crossCombos[combo.SignatureHash]; exists {
		return nil
	}
	combo.ID = s.nextID
	s.nextID++
	s.crossCombos[combo.SignatureHash] = combo
	return nil
}

func (s *Store) ListCrossTFCombos(ctx context.Context) ([]models.CrossTFCombo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CrossTFCombo
	for _, combo := range s.crossCombos {
		out = append(out, combo)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ComboSignature < out[j].ComboSignature
	})
	return out, nil
}
