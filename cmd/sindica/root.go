package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "sindica",
	Short: "Sindica - Procurement Anomaly Investigation Engine",
	Long: `Sindica orchestrates statistical, legal, and graph-based analyses over
Brazilian government procurement data. An investigation fans out to the
configured transparency data sources, runs the selected detection
capabilities concurrently, and aggregates their findings into a single
confidence-weighted result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadEngineConfig resolves the --config flag, falling back to SINDICA_CONFIG
// and then to built-in defaults when no file exists.
func loadEngineConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv("SINDICA_CONFIG")
	}
	return config.LoadWithDefaults(path)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Path to the engine configuration file")

	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(capabilitiesCmd)
	rootCmd.AddCommand(versionCmd)
}
