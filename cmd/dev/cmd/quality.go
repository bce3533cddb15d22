package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

type step struct {
	name string
	run  func() error
}

func stepCmd(use, short string, s step) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSteps(s)
		},
	}
}

func runSteps(steps ...step) error {
	for _, s := range steps {
		slog.Info("running", "step", s.name)
		if err := s.run(); err != nil {
			return fmt.Errorf("%s failed: %w", s.name, err)
		}
	}
	return nil
}

func TestCmd() *cobra.Command {
	return stepCmd("test", "Run unit tests", step{"tests", test.Test})
}

func LintCmd() *cobra.Command {
	return stepCmd("lint", "Run linters", step{"lint", test.Lint})
}

// IntegrationTestCmd runs the hardware tests; they expect devices on the bench bus.
func IntegrationTestCmd() *cobra.Command {
	return stepCmd("integration-test", "Run integration tests against attached devices", step{"integration tests", test.Integ})
}

// CheckCmd validates every bundled sampling plan, then lints and tests the module.
func CheckCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate sampling plans, lint and test",
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := filepath.Glob(pattern)
			if err != nil {
				return fmt.Errorf("invalid plan pattern: %w", err)
			}
			return runSteps(
				step{"plans", func() error { return validatePlans(plans) }},
				step{"lint", test.Lint},
				step{"tests", test.Test},
			)
		},
	}
	cmd.Flags().StringVar(&pattern, "plans", "config/testdata/*.yaml", "glob of sampling plans to validate")
	return cmd
}
