package main

import (
	"context"

	"github.com/spf13/cobra"
)

var configPath string

// Execute runs the sigvet command tree.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "sigvet",
		Short: "Signal validation and combination mining pipeline",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration")

	root.AddCommand(factcheckCmd())
	root.AddCommand(mineCmd())
	root.AddCommand(probeCmd())
	root.AddCommand(symbolsCmd())
	root.AddCommand(serveCmd())
	return root.ExecuteContext(ctx)
}
