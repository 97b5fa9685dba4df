package combos

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sigvet/sigvet/internal/accuracy"
	"github.com/sigvet/sigvet/internal/config"
	"github.com/sigvet/sigvet/internal/metrics"
	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/persistence"
)

// hardMaxComboSize caps subset size regardless of configuration.
const hardMaxComboSize = 3

// Miner enumerates signal combinations over the fact-check history and
// persists the ones that clear the accuracy gate.
type Miner struct {
	factChecks persistence.FactCheckRepo
	combos     persistence.ComboRepo
	cache      SummaryCache
	metrics    *metrics.Metrics
	cfg        config.MiningConfig
	now        func() time.Time
}

// NewMiner wires a miner; a nil cache falls back to the in-process backend.
func NewMiner(repos *persistence.Repository, cache SummaryCache, m *metrics.Metrics, cfg config.MiningConfig) *Miner {
	if cache == nil {
		cache = NewMemorySummaryCache(time.Hour)
	}
	if cfg.MinComboSize < 2 {
		cfg.MinComboSize = 2
	}
	if cfg.MaxComboSize <= 0 || cfg.MaxComboSize > hardMaxComboSize {
		cfg.MaxComboSize = hardMaxComboSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Miner{
		factChecks: repos.FactChecks,
		combos:     repos.Combos,
		cache:      cache,
		metrics:    m,
		cfg:        cfg,
		now:        time.Now,
	}
}

// MineSummary reports one mining run.
type MineSummary struct {
	Timeframe  models.Timeframe `json:"timeframe,omitempty"`
	Candidates int              `json:"candidates"`
	Evaluated  int              `json:"evaluated"`
	Stored     int              `json:"stored"`
	Truncated  bool             `json:"truncated"`
	Duration   time.Duration    `json:"duration"`
}

// instantGroup is all fact-checks sharing one detection instant.
type instantGroup struct {
	names   map[string]struct{}
	correct int
	total   int
	sumPct  float64
}

// MineTimeframe enumerates k-subsets of the distinct signal names on one
// timeframe and stores every subset whose co-occurrence accuracy clears the
// gate.
func (m *Miner) MineTimeframe(ctx context.Context, tf models.Timeframe) (*MineSummary, error) {
	started := m.now()
	summary := &MineSummary{Timeframe: tf}

	names, err := m.eligibleNames(ctx, tf)
	if err != nil {
		return nil, err
	}
	if len(names) < m.cfg.MinComboSize {
		return summary, nil
	}

	checks, err := m.factChecks.ListByTimeframe(ctx, tf)
	if err != nil {
		return nil, fmt.Errorf("mine %s: %w", tf, err)
	}
	groups := groupByInstant(checks)

	log.Info().Str("timeframe", string(tf)).Int("signals", len(names)).
		Int("instants", len(groups)).Msg("Combination mining started")

	for k := m.cfg.MinComboSize; k <= m.cfg.MaxComboSize && k <= len(names); k++ {
		done, err := m.mineSize(ctx, tf, names, groups, k, summary)
		if err != nil {
			return summary, err
		}
		if done {
			summary.Truncated = true
			break
		}
	}

	summary.Duration = m.now().Sub(started)
	log.Info().Str("timeframe", string(tf)).Int("candidates", summary.Candidates).
		Int("stored", summary.Stored).Bool("truncated", summary.Truncated).
		Dur("took", summary.Duration).Msg("Combination mining finished")
	return summary, nil
}

// mineSize walks all k-subsets with an iterative index vector. Returns true
// when the candidate cap stops the run.
func (m *Miner) mineSize(ctx context.Context, tf models.Timeframe, names []string, groups []instantGroup, k int, summary *MineSummary) (bool, error) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	subset := make([]string, k)
	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		summary.Candidates++
		if m.cfg.MaxCombinations > 0 && summary.Candidates > m.cfg.MaxCombinations {
			return true, nil
		}

		for i, j := range idx {
			subset[i] = names[j]
		}
		if err := m.evaluateSubset(ctx, tf, subset, groups, summary); err != nil {
			return true, err
		}
		if summary.Candidates%m.cfg.BatchSize == 0 {
			log.Info().Str("timeframe", string(tf)).Int("size", k).
				Int("candidates", summary.Candidates).Int("stored", summary.Stored).
				Msg("Combination mining progress")
		}

		// advance to the next lexicographic k-subset
		i := k - 1
		for i >= 0 && idx[i] == len(names)-k+i {
			i--
		}
		if i < 0 {
			return false, nil
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// evaluateSubset scores one candidate against the instant groups. A group
// counts only when exactly the subset's signals fired at that instant.
func (m *Miner) evaluateSubset(ctx context.Context, tf models.Timeframe, subset []string, groups []instantGroup, summary *MineSummary) error {
	summary.Evaluated++

	var occurrences, correctVotes int
	var sumPct float64
	var sumWin, sumLoss float64
	var wins, losses int
	for _, g := range groups {
		if len(g.names) != len(subset) || !containsAll(g.names, subset) {
			continue
		}
		occurrences++
		meanPct := g.sumPct / float64(g.total)
		sumPct += meanPct
		// majority vote over the group's per-member correctness
		if 2*g.correct > g.total {
			correctVotes++
			sumWin += math.Abs(meanPct)
			wins++
		} else {
			sumLoss += math.Abs(meanPct)
			losses++
		}
	}
	if occurrences < m.cfg.MinSamples {
		return nil
	}

	acc := float64(correctVotes) / float64(occurrences) * 100
	if acc < m.cfg.MinAccuracy {
		return nil
	}

	var avgWin, avgLoss float64
	if wins > 0 {
		avgWin = sumWin / float64(wins)
	}
	if losses > 0 {
		avgLoss = sumLoss / float64(losses)
	}
	var pf float64
	if avgLoss != 0 {
		pf = math.Abs(avgWin / avgLoss)
	}

	sorted := append([]string(nil), subset...)
	sort.Strings(sorted)
	combo := models.TFCombo{
		SignalNames:        sorted,
		SignalNamesHash:    models.ComboHash(sorted, tf),
		Timeframe:          tf,
		Accuracy:           acc,
		SampleCount:        occurrences,
		CorrectPredictions: correctVotes,
		AvgPriceChange:     sumPct / float64(occurrences),
		ProfitFactor:       pf,
		ComboSize:          len(sorted),
		CreatedAt:          m.now(),
	}
	if err := m.combos.UpsertTFCombo(ctx, combo); err != nil {
		return fmt.Errorf("store combo %v/%s: %w", sorted, tf, err)
	}
	summary.Stored++
	m.metrics.IncComboStored("tf")
	return nil
}

// eligibleNames returns the timeframe's distinct signal names whose own
// sample size can still yield enough co-occurrences, consulting the summary
// cache before touching the store.
func (m *Miner) eligibleNames(ctx context.Context, tf models.Timeframe) ([]string, error) {
	names, err := m.factChecks.DistinctSignalNames(ctx, tf)
	if err != nil {
		return nil, fmt.Errorf("mine %s: %w", tf, err)
	}
	sort.Strings(names)

	eligible := names[:0]
	for _, name := range names {
		summary, err := m.signalSummary(ctx, name, tf)
		if err != nil {
			return nil, err
		}
		// a combo never has more samples than its thinnest member
		if summary.SampleSize >= m.cfg.MinSamples {
			eligible = append(eligible, name)
		}
	}
	return eligible, nil
}

// signalSummary returns the cached digest for one signal, computing and
// caching it on a miss.
func (m *Miner) signalSummary(ctx context.Context, name string, tf models.Timeframe) (SignalSummary, error) {
	key := name + "|" + string(tf)
	if summary, ok := m.cache.Get(ctx, key); ok {
		return summary, nil
	}

	checks, err := m.factChecks.ListBySignal(ctx, name, tf, 0)
	if err != nil {
		return SignalSummary{}, fmt.Errorf("summary %s/%s: %w", name, tf, err)
	}
	stats := accuracy.Summarize(name, tf, checks)
	summary := SignalSummary{
		Accuracy:     stats.Accuracy,
		SampleSize:   stats.TotalSamples,
		ProfitFactor: stats.ProfitFactor,
		Timestamp:    m.now(),
	}
	m.cache.Set(ctx, key, summary)
	return summary, nil
}

// groupByInstant buckets fact-checks sharing one detection instant. Output
// order follows the input's first occurrence per instant, so the ascending
// store listing yields deterministic mining.
func groupByInstant(checks []models.FactCheck) []instantGroup {
	index := make(map[int64]int)
	var groups []instantGroup
	for _, fc := range checks {
		key := fc.DetectedAt.UnixNano()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, instantGroup{names: make(map[string]struct{})})
		}
		g := &groups[i]
		g.names[fc.SignalName] = struct{}{}
		g.total++
		if fc.PredictedCorrectly {
			g.correct++
		}
		g.sumPct += fc.PriceChangePct
	}
	return groups
}

func containsAll(set map[string]struct{}, names []string) bool {
	for _, name := range names {
		if _, ok := set[name]; !ok {
			return false
		}
	}
	return true
}
