package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cgast/prowrite/internal/config"
	"github.com/cgast/prowrite/internal/logging"
)

var (
	configDir string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "prowrite",
	Short: "Evaluate model outputs on professional writing tasks",
	Long: `prowrite runs ProWriteBench tasks against a language model and scores the
outputs on constraint compliance, audience clarity, stakeholder balance,
appropriateness and revision coherence.

Examples:
  prowrite init
  prowrite validate tasks/cr-001.yaml
  prowrite run --model claude-sonnet-4-20250514
  prowrite evaluate --task cr-001 --model openai:gpt-4o
  prowrite report --results results/gpt-4o_20260101_120000.json --format markdown`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultDir, "directory holding config.yaml and providers.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override the configured log format (text, json)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the runtime config and builds the logger it describes.
// Flags override the file.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(config.Path(configDir, config.ConfigFile))
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}
