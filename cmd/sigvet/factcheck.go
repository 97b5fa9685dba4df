package main

import (
	"github.com/spf13/cobra"

	"github.com/sigvet/sigvet/internal/accuracy"
	"github.com/sigvet/sigvet/internal/factcheck"
)

func factcheckCmd() *cobra.Command {
	var (
		symbol   string
		limit    int
		noFilter bool
		workers  int
	)
	cmd := &cobra.Command{
		Use:   "factcheck",
		Short: "Validate pending signals against their forward candle journeys",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			mgr, err := app.openDB()
			if err != nil {
				return err
			}
			defer mgr.Close()
			repos := mgr.Repos()

			evaluator := factcheck.NewEvaluator(app.cfg.Validation.StopLossPct, app.cfg.Validation.MinProfitPct)
			filter := factcheck.NewFilter(repos.FactChecks, repos.Combos)
			agg := accuracy.New(repos, app.cfg.Mining.MinSamples)
			orch := factcheck.NewOrchestrator(repos, app.journeys, evaluator, filter, agg, app.metrics)

			if workers <= 0 {
				workers = app.cfg.Validation.MaxWorkers
			}
			summary, err := orch.Run(cmd.Context(), factcheck.Options{
				Symbol:       symbol,
				Limit:        limit,
				UseFiltering: !noFilter,
				MaxWorkers:   workers,
			})
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "restrict the run to one symbol")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum pending signals to process (0 = all)")
	cmd.Flags().BoolVar(&noFilter, "no-filter", false, "fact-check every pending signal, skipping the filter")
	cmd.Flags().IntVar(&workers, "workers", 0, "per-batch parallelism (default from config)")
	return cmd
}
