// Package cmd implements the forecast-engine CLI.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sfs/forecast-engine/internal/config"
	"sfs/forecast-engine/pkg/logger"

	// Register all output plugins.
	_ "sfs/forecast-engine/pkg/output/all"
)

const (
	// Version is the current release version.
	Version = "0.1.0"

	// Banner is the ASCII art shown at startup.
	Banner = `
          /\      Forecast Engine %s
     /\  /  \  /\
    /  \/    \/  \/\
 /\/              \ \
/                  \_\
`
)

var (
	cfgFile string
	cfgSets []string
	debug   bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "forecast-engine",
	Short: "Demand forecasting engine",
	Long: `forecast-engine generates statistical demand forecasts from
historical sales data. It fits a family of candidate models per series,
selects the winner by rolling-origin cross-validation, and produces
forecasts with accuracy summaries, either on one machine or across a
cluster of workers.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringArrayVar(&cfgSets, "set", nil, "config override, format: section.key=value (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}
	if len(cfgSets) > 0 {
		overrides := make(map[string]string, len(cfgSets))
		for _, kv := range cfgSets {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid --set %q, want section.key=value", kv)
			}
			overrides[parts[0]] = parts[1]
		}
		loader = loader.WithCmdArgs(overrides)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// initLogging builds the global logger from config and global flags.
func initLogging(cfg *config.Config) {
	lc := &logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}
	if debug {
		lc.Level = "debug"
		lc.Format = "console"
	}
	if quiet && !debug {
		lc.Level = "error"
	}
	logger.Init(lc)
}

// GetRootCmd returns the root command, for tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}
