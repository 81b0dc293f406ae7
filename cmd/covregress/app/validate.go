package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covregress/internal/fixture"
	"github.com/zjy-dev/covregress/internal/logger"
	"github.com/zjy-dev/covregress/internal/recipe"
	"github.com/zjy-dev/covregress/internal/scrub"
)

// NewValidateCommand creates the "validate" subcommand.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every fixture recipe for consistency.",
		Long: `Check that every fixture Makefile declares a consistent run target:
all referenced formats must be known, every run prerequisite must have a
target, and every provided format target must be referenced by run.

All inconsistencies are listed, not just the first one found.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			fixtures, err := fixture.Discover(cfg.SuiteRoot)
			if err != nil {
				return err
			}

			failures := 0
			for _, fx := range fixtures {
				if err := recipe.ValidateRun(fx.Name, fx.Targets, scrub.KnownFormats); err != nil {
					fmt.Fprintln(os.Stderr, err)
					failures++
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d fixtures failed validation", failures, len(fixtures))
			}
			logger.Info("All %d fixtures validated", len(fixtures))
			return nil
		},
	}

	return cmd
}
