package factcheck

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/persistence"
)

// Filter decision reasons. First matching rule wins.
const (
	ReasonStrongSignal       = "STRONG_SIGNAL"
	ReasonModerateSignal     = "MODERATE_SIGNAL"
	ReasonHighConfidence     = "HIGH_CONFIDENCE"
	ReasonWinningComboMember = "WINNING_COMBO_MEMBER"
	ReasonInsufficientData   = "INSUFFICIENT_DATA"
	ReasonRandomSample       = "RANDOM_SAMPLE"
	ReasonNonStandardTF      = "TIMEFRAME_NOT_STANDARD"
	ReasonWeakSignalSkip     = "WEAK_SIGNAL_SKIP"
)

const (
	highConfidenceFloor = 75.0
	minSampleSize       = 20
	randomSampleRate    = 0.30
	winningComboFloor   = 60.0
)

// Decision is the filter verdict for one signal.
type Decision struct {
	ShouldCheck bool
	Reason      string
}

// Filter decides which pending signals earn a fact-check. Strong and
// moderate signals always pass; weak ones pass only through the combo,
// sample-size or random-sample doors.
type Filter struct {
	factChecks persistence.FactCheckRepo
	combos     persistence.ComboRepo
	randFloat  func() float64

	mu      sync.Mutex
	total   int
	checked int
	reasons map[string]int
}

// NewFilter builds a filter over the given repos.
func NewFilter(factChecks persistence.FactCheckRepo, combos persistence.ComboRepo) *Filter {
	return &Filter{
		factChecks: factChecks,
		combos:     combos,
		randFloat:  rand.Float64,
		reasons:    make(map[string]int),
	}
}

// SetRandFunc replaces the random source; tests pin the sampling decision.
func (f *Filter) SetRandFunc(fn func() float64) { f.randFloat = fn }

// Decide evaluates the ordered rule list for one signal.
func (f *Filter) Decide(ctx context.Context, sig models.LiveSignal) (Decision, error) {
	d, err := f.decide(ctx, sig)
	if err != nil {
		return Decision{}, err
	}
	f.record(d)
	return d, nil
}

func (f *Filter) decide(ctx context.Context, sig models.LiveSignal) (Decision, error) {
	switch sig.Strength {
	case models.StrengthStrong, models.StrengthVeryStrong:
		return Decision{ShouldCheck: true, Reason: ReasonStrongSignal}, nil
	case models.StrengthModerate:
		return Decision{ShouldCheck: true, Reason: ReasonModerateSignal}, nil
	}

	if sig.Confidence >= highConfidenceFloor {
		return Decision{ShouldCheck: true, Reason: ReasonHighConfidence}, nil
	}

	member, err := f.inWinningCombo(ctx, sig.SignalName, sig.Timeframe)
	if err != nil {
		return Decision{}, err
	}
	if member {
		return Decision{ShouldCheck: true, Reason: ReasonWinningComboMember}, nil
	}

	count, err := f.factChecks.CountBySignal(ctx, sig.SignalName, sig.Timeframe)
	if err != nil {
		return Decision{}, fmt.Errorf("filter sample count %s/%s: %w", sig.SignalName, sig.Timeframe, err)
	}
	if count < minSampleSize {
		return Decision{ShouldCheck: true, Reason: ReasonInsufficientData}, nil
	}

	if f.randFloat() < randomSampleRate {
		return Decision{ShouldCheck: true, Reason: ReasonRandomSample}, nil
	}

	if sig.Timeframe == models.TF2h || sig.Timeframe == models.TF6h {
		return Decision{Reason: ReasonNonStandardTF}, nil
	}

	return Decision{Reason: ReasonWeakSignalSkip}, nil
}

// inWinningCombo reports whether the signal name appears as a substring of
// any member of a proven combination on the same timeframe.
func (f *Filter) inWinningCombo(ctx context.Context, signalName string, tf models.Timeframe) (bool, error) {
	combos, err := f.combos.ListTFCombos(ctx, tf, winningComboFloor)
	if err != nil {
		return false, fmt.Errorf("filter combo lookup %s/%s: %w", signalName, tf, err)
	}
	for _, combo := range combos {
		for _, member := range combo.SignalNames {
			if strings.Contains(member, signalName) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *Filter) record(d Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total++
	if d.ShouldCheck {
		f.checked++
	}
	f.reasons[d.Reason]++
}

// FilterStats is a snapshot of the filter's aggregate decisions.
type FilterStats struct {
	Total     int            `json:"total"`
	Checked   int            `json:"checked"`
	CheckRate float64        `json:"check_rate"`
	ByReason  map[string]int `json:"by_reason"`
}

// Stats copies out the aggregate counters.
func (f *Filter) Stats() FilterStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := FilterStats{
		Total:    f.total,
		Checked:  f.checked,
		ByReason: make(map[string]int, len(f.reasons)),
	}
	for reason, n := range f.reasons {
		stats.ByReason[reason] = n
	}
	if f.total > 0 {
		stats.CheckRate = float64(f.checked) / float64(f.total)
	}
	return stats
}
