package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kline-pager/internal/app"
)

var (
	showSymbol   string
	showInterval string
	showLimit    int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent candles and load history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Symbol:   showSymbol,
			Interval: showInterval,
			Limit:    showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showSymbol, "symbol", "", "Symbol whose candles to display (loads only when empty)")
	showCmd.Flags().StringVar(&showInterval, "interval", "", "Kline interval (defaults to loader.interval)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
}
