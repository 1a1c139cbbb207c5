package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kline-pager/internal/app"
	"kline-pager/internal/config"
	"kline-pager/internal/logging"
)

// standalone marks commands that run without loading configuration.
const standalone = "klinepager/standalone"

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "klinepager",
	Short:         "Page historical klines from Binance into storage, files or a terminal UI",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsConfig(cmd) || appHandle != nil {
			return nil
		}
		return initApp()
	},
}

func initApp() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	appHandle = app.NewApp(cfg, logging.NewLogger(cfg.Logging))
	return nil
}

// needsConfig reports whether cmd depends on a loaded App.
func needsConfig(cmd *cobra.Command) bool {
	_, ok := cmd.Annotations[standalone]
	return !ok
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "klinepager:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	for _, cmd := range []*cobra.Command{intervalsCmd, versionCmd} {
		if cmd.Annotations == nil {
			cmd.Annotations = map[string]string{}
		}
		cmd.Annotations[standalone] = "true"
	}

	rootCmd.AddCommand(loadCmd, viewCmd, exportCmd, showCmd, simulateCmd, intervalsCmd, versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
