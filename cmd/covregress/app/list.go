package app

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/covregress/internal/fixture"
	"github.com/zjy-dev/covregress/internal/harness"
)

// NewListCommand creates the "list" subcommand.
func NewListCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the cases the suite would run.",
		Long: `List every fixture/format case the suite would run, without building
anything. Cases expected to fail on this platform are marked.

Examples:
  # Print the plan
  covregress list

  # Machine-readable plan
  covregress list --json`,
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
			cases, err := harness.BuildPlan(fixtures, cfg.Formats, runtime.GOOS)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSONPlan(cases)
			}
			for _, c := range cases {
				line := c.ID()
				if c.XFail {
					line += " (xfail: " + c.XFailReason + ")"
				}
				fmt.Println(line)
			}
			fmt.Printf("%d cases across %d fixtures\n", len(cases), len(fixtures))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the plan as JSON")

	return cmd
}

func printJSONPlan(cases []harness.Case) error {
	type plannedCase struct {
		ID          string `json:"id"`
		Fixture     string `json:"fixture"`
		Format      string `json:"format"`
		XFail       bool   `json:"xfail,omitempty"`
		XFailReason string `json:"xfail_reason,omitempty"`
	}

	plan := make([]plannedCase, 0, len(cases))
	for _, c := range cases {
		plan = append(plan, plannedCase{
			ID:          c.ID(),
			Fixture:     c.Fixture,
			Format:      c.Format,
			XFail:       c.XFail,
			XFailReason: c.XFailReason,
		})
	}

	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
