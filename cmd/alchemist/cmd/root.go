// Package cmd implements the CLI commands for alchemist.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alchemist-av/alchemist/internal/config"
	"github.com/alchemist-av/alchemist/internal/observability"
	"github.com/alchemist-av/alchemist/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "alchemist",
	Short:   "Autonomous media transcoding engine",
	Version: version.Short(),
	Long: `alchemist watches media libraries and converts files to modern codecs
(AV1, HEVC) using whatever hardware encoder the host offers, falling back
to CPU encoding when allowed.

Files are queued in a durable job store, encoded under a bounded worker
pool gated by schedule windows, verified for size and quality, and
finalized atomically. A JSON API and SSE event stream expose the queue.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// PersistentPreRunE is set here to avoid an initialization cycle
	// (initLogging references rootCmd.PersistentFlags).
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// Global flags. These are not bound to viper: loadConfig checks
	// Changed() and only then overrides, preserving the priority
	// CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default alchemist.yaml in ., ~/.config/alchemist, /etc/alchemist)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// loadConfig resolves the full configuration from file, environment and
// defaults, then applies explicitly-set global CLI flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		cfg.Logging.Format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	return cfg, nil
}

// initLogging configures the default slog logger before any command runs.
// Commands that load the full config replace it with the resolved logging
// settings; this covers early startup and commands that never load config.
func initLogging() error {
	level := os.Getenv("ALCHEMIST_LOGGING_LEVEL")
	format := os.Getenv("ALCHEMIST_LOGGING_FORMAT")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}

	// "warning" reads naturally in env files.
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}

	logger := observability.NewLoggerWithWriter(config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}, os.Stderr)
	observability.SetDefault(logger)

	return nil
}
