package combos

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sigvet/sigvet/internal/models"
)

const (
	// crossBaseHistory bounds how much base-pair history a candidate scans.
	crossBaseHistory = 500
	// defaultMinTimeframes and defaultMaxTimeframes bound timeframe spread.
	defaultMinTimeframes = 2
	defaultMaxTimeframes = 3
)

// CrossOptions narrow a cross-timeframe mining run.
type CrossOptions struct {
	// MinTimeframes and MaxTimeframes bound the count of distinct
	// timeframes inside a candidate; zero values take the defaults.
	MinTimeframes int
	MaxTimeframes int
}

func (o CrossOptions) withDefaults() CrossOptions {
	if o.MinTimeframes <= 0 {
		o.MinTimeframes = defaultMinTimeframes
	}
	if o.MaxTimeframes <= 0 {
		o.MaxTimeframes = defaultMaxTimeframes
	}
	return o
}

// MineCrossTimeframe enumerates subsets of (signal, timeframe) pairs and
// stores those whose base occurrences are echoed on the other pairs within
// the tolerance window.
func (m *Miner) MineCrossTimeframe(ctx context.Context, opts CrossOptions) (*MineSummary, error) {
	opts = opts.withDefaults()
	started := m.now()
	summary := &MineSummary{}

	pairs, err := m.factChecks.DistinctPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("mine cross: %w", err)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].SignalName != pairs[j].SignalName {
			return pairs[i].SignalName < pairs[j].SignalName
		}
		return pairs[i].Timeframe < pairs[j].Timeframe
	})
	if len(pairs) < m.cfg.MinComboSize {
		return summary, nil
	}

	window := m.cfg.CrossTFWindow
	if window <= 0 {
		window = time.Hour
	}

	log.Info().Int("pairs", len(pairs)).Int("min_tfs", opts.MinTimeframes).
		Int("max_tfs", opts.MaxTimeframes).Msg("Cross-timeframe mining started")

	for k := m.cfg.MinComboSize; k <= m.cfg.MaxComboSize && k <= len(pairs); k++ {
		done, err := m.mineCrossSize(ctx, pairs, k, opts, window, summary)
		if err != nil {
			return summary, err
		}
		if done {
			summary.Truncated = true
			break
		}
	}

	summary.Duration = m.now().Sub(started)
	log.Info().Int("candidates", summary.Candidates).Int("stored", summary.Stored).
		Bool("truncated", summary.Truncated).Dur("took", summary.Duration).
		Msg("Cross-timeframe mining finished")
	return summary, nil
}

func (m *Miner) mineCrossSize(ctx context.Context, pairs []models.SignalTimeframe, k int, opts CrossOptions, window time.Duration, summary *MineSummary) (bool, error) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	candidate := make([]models.SignalTimeframe, k)
	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		summary.Candidates++
		if m.cfg.MaxCombinations > 0 && summary.Candidates > m.cfg.MaxCombinations {
			return true, nil
		}

		for i, j := range idx {
			candidate[i] = pairs[j]
		}
		if n := distinctTimeframes(candidate); n >= opts.MinTimeframes && n <= opts.MaxTimeframes {
			if err := m.evaluateCrossCandidate(ctx, candidate, window, summary); err != nil {
				return true, err
			}
		}
		if summary.Candidates%m.cfg.BatchSize == 0 {
			log.Info().Int("size", k).Int("candidates", summary.Candidates).
				Int("stored", summary.Stored).Msg("Cross-timeframe mining progress")
		}

		i := k - 1
		for i >= 0 && idx[i] == len(pairs)-k+i {
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

// evaluateCrossCandidate scans the base pair's recent history and counts the
// occurrences every other pair echoes within the window.
func (m *Miner) evaluateCrossCandidate(ctx context.Context, candidate []models.SignalTimeframe, window time.Duration, summary *MineSummary) error {
	summary.Evaluated++

	base := candidate[0]
	history, err := m.factChecks.ListBySignal(ctx, base.SignalName, base.Timeframe, crossBaseHistory)
	if err != nil {
		return fmt.Errorf("cross base %s/%s: %w", base.SignalName, base.Timeframe, err)
	}

	var matches, correct int
	var sumPct, sumWin, sumLoss float64
	var wins, losses int
	for _, fc := range history {
		matched := true
		for _, other := range candidate[1:] {
			ok, err := m.factChecks.ExistsNear(ctx, other.SignalName, other.Timeframe, fc.DetectedAt, window)
			if err != nil {
				return fmt.Errorf("cross match %s/%s: %w", other.SignalName, other.Timeframe, err)
			}
			if !ok {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		matches++
		sumPct += fc.PriceChangePct
		if fc.PredictedCorrectly {
			correct++
			sumWin += math.Abs(fc.PriceChangePct)
			wins++
		} else {
			sumLoss += math.Abs(fc.PriceChangePct)
			losses++
		}
	}
	if matches < m.cfg.MinSamples {
		return nil
	}

	acc := float64(correct) / float64(matches) * 100
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

	signature, hash := models.CrossComboSignature(candidate)
	names := make([]string, len(candidate))
	tfs := make([]string, len(candidate))
	for i, p := range candidate {
		names[i] = p.SignalName
		tfs[i] = string(p.Timeframe)
	}
	combo := models.CrossTFCombo{
		ComboSignature:     signature,
		SignatureHash:      hash,
		SignalNames:        names,
		Timeframes:         tfs,
		Accuracy:           acc,
		SampleCount:        matches,
		CorrectPredictions: correct,
		AvgPriceChange:     sumPct / float64(matches),
		ProfitFactor:       pf,
		ComboSize:          len(candidate),
		NumTimeframes:      distinctTimeframes(candidate),
		CreatedAt:          m.now(),
	}
	if err := m.combos.UpsertCrossTFCombo(ctx, combo); err != nil {
		return fmt.Errorf("store cross combo %s: %w", signature, err)
	}
	summary.Stored++
	m.metrics.IncComboStored("cross_tf")
	return nil
}

func distinctTimeframes(pairs []models.SignalTimeframe) int {
	seen := make(map[models.Timeframe]struct{}, len(pairs))
	for _, p := range pairs {
		seen[p.Timeframe] = struct{}{}
	}
	return len(seen)
}
