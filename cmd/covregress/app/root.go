package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covregress/internal/config"
	"github.com/zjy-dev/covregress/internal/logger"
)

var (
	configFile string
	logLevel   string
)

// NewCovregressCommand creates the root command for the covregress tool.
func NewCovregressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "covregress",
		Short: "A regression harness for coverage report generators.",
		Long: `Covregress runs a suite of fixture projects through a coverage report
generator and compares the generated reports against stored references.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the configuration file (default: search for covregress.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewValidateCommand())

	return cmd
}

// loadConfig loads the configuration and applies the persistent flag
// overrides shared by every subcommand.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	logger.Init(cfg.LogLevel)
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}
