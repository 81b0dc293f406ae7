package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/zjy-dev/covregress/internal/config"
	"github.com/zjy-dev/covregress/internal/exec"
	"github.com/zjy-dev/covregress/internal/fixture"
	"github.com/zjy-dev/covregress/internal/harness"
	"github.com/zjy-dev/covregress/internal/logger"
	"github.com/zjy-dev/covregress/internal/report"
	"github.com/zjy-dev/covregress/internal/watch"
)

// NewRunCommand creates the "run" subcommand.
func NewRunCommand() *cobra.Command {
	defaults := config.Default()

	var (
		suiteRoot         string
		generator         string
		makeTool          string
		referenceDir      string
		formats           []string
		timeout           time.Duration
		parallel          int
		skipClean         bool
		generateReference bool
		updateReference   bool
		tapFile           string
		jsonReport        string
		watchMode         bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fixture suite.",
		Long: `Run every fixture in the suite through the coverage report generator
and compare the generated reports against the stored references.

For each fixture this command:
  1. Builds the project (make clean, make all)
  2. Generates each enabled report format (make <format>)
  3. Scrubs volatile content from the generated reports
  4. Compares the result against the reference files
  5. Cleans up build artifacts (make clean)

Reference management:
  --generate-reference stores missing reference files from fresh output.
  --update-reference overwrites stale reference files; the updated cases
  still count as failures for this run.

Configuration:
  Default values are loaded from covregress.yaml.
  Command line flags override the config file values.

Examples:
  # Run the whole suite
  covregress run

  # Run only the xml and json cases with four fixtures in parallel
  covregress run --formats xml,json --parallel 4

  # Accept the current output as the new golden state
  covregress run --update-reference

  # Re-run affected fixtures on every source change
  covregress run --watch`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("suite-root") {
				root, err := homedir.Expand(suiteRoot)
				if err != nil {
					return fmt.Errorf("failed to expand suite root: %w", err)
				}
				cfg.SuiteRoot = root
			}
			if flags.Changed("generator") {
				cfg.Generator = generator
			}
			if flags.Changed("make") {
				cfg.Make = makeTool
			}
			if flags.Changed("reference-dir") {
				cfg.ReferenceDir = referenceDir
			}
			if flags.Changed("formats") {
				cfg.Formats = formats
			}
			if flags.Changed("timeout") {
				cfg.Timeout = timeout
			}
			if flags.Changed("parallel") {
				cfg.Parallel = parallel
			}
			if flags.Changed("skip-clean") {
				cfg.SkipClean = skipClean
			}
			if flags.Changed("generate-reference") {
				cfg.GenerateReference = generateReference
			}
			if flags.Changed("update-reference") {
				cfg.UpdateReference = updateReference
			}
			if flags.Changed("tap-file") {
				cfg.TAPFile = tapFile
			}
			if flags.Changed("json-report") {
				cfg.JSONReport = jsonReport
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watchMode {
				return watchSuite(ctx, cfg)
			}
			return runSuite(ctx, cfg, nil)
		},
	}

	cmd.Flags().StringVar(&suiteRoot, "suite-root", defaults.SuiteRoot, "Directory whose subdirectories are fixtures")
	cmd.Flags().StringVar(&generator, "generator", defaults.Generator, "Command exported to recipes as GCOVR")
	cmd.Flags().StringVar(&makeTool, "make", defaults.Make, "Build tool executable")
	cmd.Flags().StringVar(&referenceDir, "reference-dir", defaults.ReferenceDir, "Per-fixture reference directory name")
	cmd.Flags().StringSliceVar(&formats, "formats", defaults.Formats, "Report formats to run")
	cmd.Flags().DurationVar(&timeout, "timeout", defaults.Timeout, "Timeout per make invocation")
	cmd.Flags().IntVar(&parallel, "parallel", defaults.Parallel, "Number of fixtures built concurrently")
	cmd.Flags().BoolVar(&skipClean, "skip-clean", false, "Leave build artifacts in place after each fixture")
	cmd.Flags().BoolVar(&generateReference, "generate-reference", false, "Store missing reference files from fresh output")
	cmd.Flags().BoolVar(&updateReference, "update-reference", false, "Overwrite stale reference files from fresh output")
	cmd.Flags().StringVar(&tapFile, "tap-file", "", "Write a TAP stream to this file")
	cmd.Flags().StringVar(&jsonReport, "json-report", "", "Write a JSON report to this file")
	cmd.Flags().BoolVar(&watchMode, "watch", false, "Re-run affected fixtures when their files change")

	return cmd
}

// runSuite executes one pass over the suite. A non-nil only list restricts
// the pass to those fixtures.
func runSuite(ctx context.Context, cfg *config.Config, only []string) error {
	fixtures, err := fixture.Discover(cfg.SuiteRoot)
	if err != nil {
		return err
	}
	if len(fixtures) == 0 && only == nil {
		return fmt.Errorf("no fixtures found under %s", cfg.SuiteRoot)
	}
	if only != nil {
		fixtures = filterFixtures(fixtures, only)
	}

	cases, err := harness.BuildPlan(fixtures, cfg.Formats, runtime.GOOS)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		logger.Warn("Nothing to run under %s", cfg.SuiteRoot)
		return nil
	}

	executor := exec.NewCommandExecutor()
	executor.Timeout = cfg.Timeout
	executor.Env = []string{"GCOVR=" + cfg.Generator}

	reporters := report.Reporters{report.NewConsoleReporter(os.Stdout)}
	if cfg.TAPFile != "" {
		reporters = append(reporters, report.NewTAPReporter(cfg.TAPFile))
	}
	if cfg.JSONReport != "" {
		reporters = append(reporters, report.NewJSONReporter(cfg.JSONReport, cfg.Generator, runtime.GOOS))
	}

	engine := harness.NewEngine(harness.Config{
		Exec:              executor,
		Reporters:         reporters,
		SuiteRoot:         cfg.SuiteRoot,
		Make:              cfg.Make,
		ReferenceDir:      cfg.ReferenceDir,
		GenerateReference: cfg.GenerateReference,
		UpdateReference:   cfg.UpdateReference,
		SkipClean:         cfg.SkipClean,
		Parallel:          cfg.Parallel,
	})

	s, err := engine.Run(ctx, cases)
	if err != nil {
		return err
	}
	if !s.Ok() {
		return fmt.Errorf("suite failed: %d of %d cases failed", s.Failed+s.Errored, s.Total)
	}
	return nil
}

func filterFixtures(fixtures []fixture.Fixture, names []string) []fixture.Fixture {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	var out []fixture.Fixture
	for _, fx := range fixtures {
		if wanted[fx.Name] {
			out = append(out, fx)
		}
	}
	return out
}

// watchSuite runs the suite once, then re-runs changed fixtures until the
// context is cancelled. A failing pass keeps the watch alive.
func watchSuite(ctx context.Context, cfg *config.Config) error {
	if err := runSuite(ctx, cfg, nil); err != nil {
		logger.Warn("Suite not passing: %v", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	fixtures, err := fixture.Discover(cfg.SuiteRoot)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(fixtures))
	for _, fx := range fixtures {
		names = append(names, fx.Name)
	}

	return watch.Run(ctx, watch.Config{
		SuiteRoot:    cfg.SuiteRoot,
		ReferenceDir: cfg.ReferenceDir,
		Fixtures:     names,
	}, func(changed []string) {
		logger.Info("Changed fixtures: %s", strings.Join(changed, ", "))
		if err := runSuite(ctx, cfg, changed); err != nil {
			logger.Warn("Suite not passing: %v", err)
		}
	})
}
