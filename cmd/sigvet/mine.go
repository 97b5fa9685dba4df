package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigvet/sigvet/internal/combos"
	"github.com/sigvet/sigvet/internal/models"
)

func mineCmd() *cobra.Command {
	var timeframe string
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine same-timeframe signal combinations from fact-check history",
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := models.ParseTimeframe(timeframe)
			if err != nil {
				return err
			}
			app, err := newApp()
			if err != nil {
				return err
			}
			mgr, err := app.openDB()
			if err != nil {
				return err
			}
			defer mgr.Close()

			miner := combos.NewMiner(mgr.Repos(), app.summaryCache(), app.metrics, app.cfg.Mining)
			summary, err := miner.MineTimeframe(cmd.Context(), tf)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().StringVar(&timeframe, "timeframe", "1h", "timeframe to mine")
	cmd.AddCommand(mineCrossCmd())
	return cmd
}

func mineCrossCmd() *cobra.Command {
	var minTFs, maxTFs int
	cmd := &cobra.Command{
		Use:   "cross",
		Short: "Mine cross-timeframe combinations within the tolerance window",
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

			miner := combos.NewMiner(mgr.Repos(), app.summaryCache(), app.metrics, app.cfg.Mining)
			summary, err := miner.MineCrossTimeframe(cmd.Context(), combos.CrossOptions{
				MinTimeframes: minTFs,
				MaxTimeframes: maxTFs,
			})
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().IntVar(&minTFs, "min-tfs", 2, "minimum distinct timeframes per candidate")
	cmd.Flags().IntVar(&maxTFs, "max-tfs", 3, "maximum distinct timeframes per candidate")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
