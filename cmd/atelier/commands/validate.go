package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dyluth/atelier/internal/impact"
	"github.com/dyluth/atelier/internal/listing"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/pkg/plan"
	"github.com/spf13/cobra"
)

var (
	planPath       string
	mutationPath   string
	validateOutput string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the impact of a proposed plan edit",
	Long: `Evaluate a create, edit, delete or move of a task or stage against a
composed plan and report whether it can proceed.

The command exits non-zero when the mutation is rejected.

Examples:
  atelier compose --intake intake.yml -o json > plan.json
  atelier validate --plan plan.json --mutation mutation.yml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&planPath, "plan", "", "Path to a plan written by 'compose -o json' (required)")
	validateCmd.Flags().StringVar(&mutationPath, "mutation", "", "Path to the mutation YAML file (required)")
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "default", "Output format (default or json)")
	_ = validateCmd.MarkFlagRequired("plan")
	_ = validateCmd.MarkFlagRequired("mutation")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := checkOutput(validateOutput); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := loadPlan(planPath)
	if err != nil {
		return err
	}

	var req impact.MutationRequest
	if err := readYAML(mutationPath, &req); err != nil {
		return printer.Error("invalid mutation", err.Error(), nil)
	}

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	report := s.pipeline.Evaluate(ctx, req, p)

	if validateOutput == "json" {
		if err := listing.FormatSingleJSON(printer.Stdout(), report); err != nil {
			return err
		}
	} else {
		listing.FormatReport(printer.Stdout(), report)
		printer.Verdict(string(report.Outcome), report.CanProceed, report.RequiresConfirmation)
	}

	if !report.CanProceed {
		return fmt.Errorf("mutation rejected")
	}
	return nil
}

func loadPlan(path string) (*plan.ComposedPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, printer.Error(
			"plan not found",
			fmt.Sprintf("failed to read %s: %v", path, err),
			[]string{"Write a plan first:\n  atelier compose --intake intake.yml -o json > plan.json"},
		)
	}

	var p plan.ComposedPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, printer.Error("invalid plan", fmt.Sprintf("failed to parse %s: %v", path, err), nil)
	}
	if err := p.Validate(); err != nil {
		return nil, printer.Error("invalid plan", err.Error(), nil)
	}
	return &p, nil
}
