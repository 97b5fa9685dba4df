package main

import (
	"github.com/spf13/cobra"
)

func probeCmd() *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe every venue with a lightweight price request",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			return printJSON(app.aggregator.Probe(cmd.Context(), symbol))
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "BTC", "liquid symbol used for the probe")
	return cmd
}
