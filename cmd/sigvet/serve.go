package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sigvet/sigvet/internal/accuracy"
	"github.com/sigvet/sigvet/internal/factcheck"
	"github.com/sigvet/sigvet/internal/httpapi"
	"github.com/sigvet/sigvet/internal/scheduler"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring server and background housekeeping",
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

			sched := scheduler.New(app.aggregator, app.cache, app.cfg.Exchanges.AvailabilitySnapshot)
			sched.Start(cmd.Context())
			defer sched.Stop()

			if addr == "" {
				addr = app.cfg.HTTP.ListenAddr
			}
			server := httpapi.New(addr, app.aggregator, app.cache, filter, orch, mgr, app.registry)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case <-cmd.Context().Done():
				log.Info().Msg("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
