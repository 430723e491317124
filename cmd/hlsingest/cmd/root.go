// Package cmd implements the CLI commands for hlsingest.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vodlive/hlsingest/internal/config"
	"github.com/vodlive/hlsingest/internal/observability"
)

var configPath string

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hlsingest",
	Short: "HLS ingest engine for fragmented MP4 streams",
	Long: `hlsingest resolves an HLS manifest and exposes it as a single,
randomly-addressable virtual byte stream: the fMP4 init segment followed
by the tracked media segments, addressable as one continuous [init][seg]...
layout suitable for handing to a demuxer.

Configuration is read from (in order of precedence): CLI flags, environment
variables prefixed HLSINGEST_, a config file (./config.yaml by default),
and built-in defaults.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig reads configuration and applies any CLI flag overrides shared
// across subcommands (log level/format).
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = strings.ToLower(format)
	}

	return cfg, nil
}

// initLogger builds and installs the process-wide default logger from cfg.
func initLogger(cfg *config.Config) {
	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)
}
