package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kline-pager/internal/paging"
)

var intervalsCmd = &cobra.Command{
	Use:   "intervals",
	Short: "List supported kline intervals",
	Run: func(cmd *cobra.Command, args []string) {
		for _, iv := range paging.SupportedIntervals() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-4s %s\n", iv, iv.Duration())
		}
	},
}
