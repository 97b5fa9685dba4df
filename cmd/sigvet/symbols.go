package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func symbolsCmd() *cobra.Command {
	var venue string
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List the symbols one venue reports as tradable",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			client, ok := app.aggregator.Client(venue)
			if !ok {
				return fmt.Errorf("unknown venue %q (known: %v)", venue, app.aggregator.Priority())
			}
			symbols, err := client.ListSymbols(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range symbols {
				fmt.Println(s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&venue, "venue", "binance", "venue to query")
	return cmd
}
