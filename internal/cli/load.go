package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kline-pager/internal/app"
	"kline-pager/internal/config"
)

var (
	loadSymbols  []string
	loadFrom     string
	loadTo       string
	loadInterval string
	loadLimit    int
	loadCSVPath  string
	loadPNGPath  string
	loadDryRun   bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load klines page by page for one or more symbols",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseTimeFlag("from", loadFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", loadTo)
		if err != nil {
			return err
		}
		if from != nil && to != nil && !from.Before(*to) {
			return fmt.Errorf("--from must be before --to")
		}
		if loadLimit < 0 || loadLimit > config.MaxPageLimit {
			return fmt.Errorf("--limit must be within 1..%d", config.MaxPageLimit)
		}

		opts := app.LoadOptions{
			Symbols:  loadSymbols,
			From:     from,
			To:       to,
			Interval: loadInterval,
			Limit:    loadLimit,
			CSVPath:  loadCSVPath,
			PNGPath:  loadPNGPath,
			DryRun:   loadDryRun,
		}

		return getApp().Load(cmd.Context(), opts)
	},
}

func init() {
	loadCmd.Flags().StringSliceVar(&loadSymbols, "symbol", nil, "Symbol to load; repeatable (defaults to loader.symbols)")
	loadCmd.Flags().StringVar(&loadFrom, "from", "", "Start timestamp (RFC3339, inclusive; defaults to yesterday 00:00 UTC)")
	loadCmd.Flags().StringVar(&loadTo, "to", "", "End timestamp (RFC3339, exclusive; defaults to now)")
	loadCmd.Flags().StringVar(&loadInterval, "interval", "", "Kline interval (defaults to loader.interval)")
	loadCmd.Flags().IntVar(&loadLimit, "limit", 0, "Samples per page (defaults to loader.page_limit)")
	loadCmd.Flags().StringVar(&loadCSVPath, "csv", "", "Write each loaded series to this CSV path")
	loadCmd.Flags().StringVar(&loadPNGPath, "png", "", "Render each loaded series to this PNG path")
	loadCmd.Flags().BoolVar(&loadDryRun, "dry-run", false, "Run without writing to storage")
}
