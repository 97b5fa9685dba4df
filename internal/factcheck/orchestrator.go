package factcheck

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sigvet/sigvet/internal/accuracy"
	"github.com/sigvet/sigvet/internal/metrics"
	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/persistence"
	"github.com/sigvet/sigvet/internal/pricedata"
)

const (
	// DefaultMaxWorkers bounds per-batch parallelism.
	DefaultMaxWorkers = 10
	// defaultValidationWindow is used when a signal has no catalog entry.
	defaultValidationWindow = 10
	// progressEvery controls how often the run logs throughput.
	progressEvery = 50
)

// Options narrow one orchestrator run.
type Options struct {
	Symbol       string // optional; empty processes all symbols
	Limit        int    // optional; 0 processes everything pending
	UseFiltering bool
	MaxWorkers   int
}

// CheckDetail records one completed evaluation for the run summary.
type CheckDetail struct {
	SignalName     string            `json:"signal_name"`
	Timeframe      models.Timeframe  `json:"timeframe"`
	Symbol         string            `json:"symbol"`
	DetectedAt     time.Time         `json:"detected_at"`
	Correct        bool              `json:"correct"`
	ExitReason     string            `json:"exit_reason"`
	PriceChangePct float64           `json:"price_change_pct"`
	ActualMove     models.ActualMove `json:"actual_move"`
}

// Summary is the aggregate outcome of one run.
type Summary struct {
	RunID        string         `json:"run_id"`
	Pending      int            `json:"pending"`
	Filtered     int            `json:"filtered"`
	TotalChecked int            `json:"total_checked"`
	Correct      int            `json:"correct"`
	Incorrect    int            `json:"incorrect"`
	StoppedOut   int            `json:"stopped_out"`
	Errors       int            `json:"errors"`
	Accuracy     float64        `json:"accuracy"`
	ProfitFactor float64        `json:"profit_factor"`
	ByExitReason map[string]int `json:"by_exit_reason"`
	Details      []CheckDetail  `json:"details"`
	Partial      bool           `json:"partial"`
	Duration     time.Duration  `json:"duration"`
}

// Orchestrator runs bulk fact-checks: unchecked signals in, fact-check
// records and refreshed confidence adjustments out.
type Orchestrator struct {
	repos     *persistence.Repository
	journeys  *pricedata.Facade
	evaluator *Evaluator
	filter    *Filter
	accuracy  *accuracy.Aggregator
	metrics   *metrics.Metrics
	now       func() time.Time

	mu      sync.Mutex
	lastRun *Summary
}

// NewOrchestrator wires the bulk pipeline.
func NewOrchestrator(repos *persistence.Repository, journeys *pricedata.Facade, evaluator *Evaluator, filter *Filter, agg *accuracy.Aggregator, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		repos:     repos,
		journeys:  journeys,
		evaluator: evaluator,
		filter:    filter,
		accuracy:  agg,
		metrics:   m,
		now:       time.Now,
	}
}

// Run processes pending signals in batches of MaxWorkers. A batch runs
// concurrently but finishes as a whole before the next starts. On context
// cancellation the in-flight batch completes and a partial summary is
// returned.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	started := o.now()
	summary := &Summary{
		RunID:        uuid.NewString(),
		ByExitReason: make(map[string]int),
	}

	pending, err := o.repos.LiveSignals.ListUnchecked(ctx, persistence.UncheckedQuery{
		Symbol: opts.Symbol,
		Limit:  opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list unchecked signals: %w", err)
	}
	summary.Pending = len(pending)

	queue := pending
	if opts.UseFiltering && o.filter != nil {
		queue = queue[:0:0]
		for _, sig := range pending {
			decision, err := o.filter.Decide(ctx, sig)
			if err != nil {
				return nil, fmt.Errorf("filter %s/%s: %w", sig.SignalName, sig.Timeframe, err)
			}
			if decision.ShouldCheck {
				queue = append(queue, sig)
			} else {
				summary.Filtered++
			}
		}
	}

	log.Info().Str("run_id", summary.RunID).Int("pending", summary.Pending).
		Int("filtered_out", summary.Filtered).Int("queued", len(queue)).
		Str("symbol", opts.Symbol).Msg("Fact-check run started")

	var (
		correct    atomic.Int64
		incorrect  atomic.Int64
		stoppedOut atomic.Int64
		errCount   atomic.Int64
		processed  atomic.Int64
		sumWinPct  atomicFloat
		sumLossPct atomicFloat

		detailMu sync.Mutex
		touched  = map[models.SignalTimeframe]struct{}{}
	)

	total := len(queue)
	for start := 0; start < total; start += opts.MaxWorkers {
		if ctx.Err() != nil {
			summary.Partial = true
			break
		}
		end := start + opts.MaxWorkers
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for _, sig := range queue[start:end] {
			wg.Add(1)
			go func(sig models.LiveSignal) {
				defer wg.Done()
				detail, err := o.checkOne(ctx, sig)
				done := processed.Add(1)
				if err != nil {
					errCount.Add(1)
					log.Warn().Err(err).Str("signal", sig.SignalName).
						Str("symbol", sig.Symbol).Str("timeframe", string(sig.Timeframe)).
						Msg("Fact-check failed")
					return
				}
				if detail.Correct {
					correct.Add(1)
					sumWinPct.add(abs(detail.PriceChangePct))
					o.metrics.IncFactCheck("correct")
				} else {
					incorrect.Add(1)
					sumLossPct.add(abs(detail.PriceChangePct))
					o.metrics.IncFactCheck("incorrect")
				}
				if models.IsStoppedOut(detail.ExitReason) {
					stoppedOut.Add(1)
				}
				detailMu.Lock()
				summary.ByExitReason[detail.ExitReason]++
				summary.Details = append(summary.Details, *detail)
				touched[models.SignalTimeframe{SignalName: sig.SignalName, Timeframe: sig.Timeframe}] = struct{}{}
				detailMu.Unlock()

				if done%progressEvery == 0 {
					o.logProgress(summary.RunID, int(done), total, started)
				}
			}(sig)
		}
		wg.Wait()
	}

	summary.TotalChecked = int(correct.Load() + incorrect.Load())
	summary.Correct = int(correct.Load())
	summary.Incorrect = int(incorrect.Load())
	summary.StoppedOut = int(stoppedOut.Load())
	summary.Errors = int(errCount.Load())
	if summary.TotalChecked > 0 {
		summary.Accuracy = float64(summary.Correct) / float64(summary.TotalChecked) * 100
	}
	wins, losses := sumWinPct.load(), sumLossPct.load()
	if losses > 0 {
		summary.ProfitFactor = wins / losses
	} else {
		summary.ProfitFactor = wins
	}
	summary.Duration = o.now().Sub(started)
	if ctx.Err() != nil {
		summary.Partial = true
	}

	o.logProgress(summary.RunID, int(processed.Load()), total, started)
	log.Info().Str("run_id", summary.RunID).Int("checked", summary.TotalChecked).
		Int("correct", summary.Correct).Int("stopped_out", summary.StoppedOut).
		Int("errors", summary.Errors).Float64("accuracy", summary.Accuracy).
		Float64("profit_factor", summary.ProfitFactor).Bool("partial", summary.Partial).
		Dur("took", summary.Duration).Msg("Fact-check run finished")

	if o.accuracy != nil && len(touched) > 0 {
		pairs := make([]models.SignalTimeframe, 0, len(touched))
		for pair := range touched {
			pairs = append(pairs, pair)
		}
		o.accuracy.Recompute(ctx, pairs)
	}

	o.mu.Lock()
	o.lastRun = summary
	o.mu.Unlock()
	return summary, nil
}

// checkOne fetches the journey for one signal, evaluates it and persists
// the outcome.
func (o *Orchestrator) checkOne(ctx context.Context, sig models.LiveSignal) (*CheckDetail, error) {
	horizon := defaultValidationWindow
	if def, err := o.repos.Signals.Get(ctx, sig.SignalName, sig.Timeframe); err == nil && def.ValidationWindow > 0 {
		horizon = def.ValidationWindow
	}

	candles, err := o.journeys.Journey(ctx, pricedata.JourneyRequest{
		Symbol:    sig.Symbol,
		Anchor:    sig.Timestamp,
		Timeframe: sig.Timeframe,
		Horizon:   horizon,
	})
	if err != nil {
		return nil, err
	}

	eval := o.evaluator.Evaluate(sig.Price, sig.SignalType, candles)
	fc := models.FactCheck{
		SignalName:         sig.SignalName,
		Timeframe:          sig.Timeframe,
		DetectedAt:         sig.Timestamp,
		PriceAtDetection:   sig.Price,
		ActualMove:         eval.ActualMove,
		PredictedCorrectly: eval.Correct,
		PriceChangePct:     eval.PriceChangePct,
		ExitReason:         eval.ExitReason,
		CandlesElapsed:     eval.CandlesElapsed,
		ValidationWindow:   horizon,
		CheckedAt:          o.now(),
	}
	if err := o.repos.FactChecks.Insert(ctx, fc); err != nil {
		return nil, fmt.Errorf("persist fact-check: %w", err)
	}

	return &CheckDetail{
		SignalName:     sig.SignalName,
		Timeframe:      sig.Timeframe,
		Symbol:         sig.Symbol,
		DetectedAt:     sig.Timestamp,
		Correct:        eval.Correct,
		ExitReason:     eval.ExitReason,
		PriceChangePct: eval.PriceChangePct,
		ActualMove:     eval.ActualMove,
	}, nil
}

func (o *Orchestrator) logProgress(runID string, done, total int, started time.Time) {
	if done == 0 || total == 0 {
		return
	}
	elapsed := o.now().Sub(started)
	rate := float64(done) / elapsed.Seconds()
	var eta time.Duration
	if rate > 0 {
		eta = time.Duration(float64(total-done)/rate) * time.Second
	}
	log.Info().Str("run_id", runID).Int("processed", done).Int("total", total).
		Float64("per_sec", rate).Dur("eta", eta).Msg("Fact-check progress")
}

// LastRun returns the most recent run summary, or nil.
func (o *Orchestrator) LastRun() *Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}

// atomicFloat accumulates float64 sums across goroutines.
type atomicFloat struct {
	mu  sync.Mutex
	val float64
}

func (f *atomicFloat) add(v float64) {
	f.mu.Lock()
	f.val += v
	f.mu.Unlock()
}

func (f *atomicFloat) load() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
