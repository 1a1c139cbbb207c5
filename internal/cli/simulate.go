package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var (
	simulateSymbol string
	simulateFailed bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic load summary through the configured alert channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := strings.ToUpper(strings.TrimSpace(simulateSymbol))
		if symbol == "" {
			return errors.New("--symbol must not be empty")
		}
		return getApp().SimulateAlert(cmd.Context(), symbol, simulateFailed)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "BTCUSDT", "Symbol named in the summary")
	simulateCmd.Flags().BoolVar(&simulateFailed, "failed", false, "Simulate a failed load")
}
