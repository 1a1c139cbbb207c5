package cli

import (
	"github.com/spf13/cobra"

	"kline-pager/internal/app"
)

var (
	viewSymbols  []string
	viewInterval string
	viewLimit    int
	viewLogFile  string
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse symbols and load klines in a terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ViewOptions{
			Symbols:  viewSymbols,
			Interval: viewInterval,
			Limit:    viewLimit,
			LogFile:  viewLogFile,
		}
		return getApp().View(cmd.Context(), opts)
	},
}

func init() {
	viewCmd.Flags().StringSliceVar(&viewSymbols, "symbol", nil, "Symbols to list; repeatable (defaults to loader.symbols)")
	viewCmd.Flags().StringVar(&viewInterval, "interval", "", "Initial kline interval")
	viewCmd.Flags().IntVar(&viewLimit, "limit", 0, "Samples per page")
	viewCmd.Flags().StringVar(&viewLogFile, "log-file", "klinepager.log", "File receiving logs while the UI owns the terminal")
}
