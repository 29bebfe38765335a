package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/atelier/internal/listing"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/internal/resolver"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/spf13/cobra"
)

var (
	intakePath   string
	planOutput   string
	detectOutput string
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show which templates an intake activates",
	Long: `Score every template of the intake's typology and show which are
activated as primary, complementary or optional.

Examples:
  atelier detect --intake intake.yml
  atelier detect --intake intake.yml -o json`,
	RunE: runDetect,
}

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Compose a project plan from an intake",
	Long: `Detect the templates an intake activates, resolve their dependencies
and compose them into one ordered plan with durations and costs.

Examples:
  atelier compose --intake intake.yml
  atelier compose --intake intake.yml -o json > plan.json`,
	RunE: runCompose,
}

func init() {
	detectCmd.Flags().StringVar(&intakePath, "intake", "", "Path to the intake YAML file (required)")
	detectCmd.Flags().StringVarP(&detectOutput, "output", "o", "default", "Output format (default or json)")
	_ = detectCmd.MarkFlagRequired("intake")

	composeCmd.Flags().StringVar(&intakePath, "intake", "", "Path to the intake YAML file (required)")
	composeCmd.Flags().StringVarP(&planOutput, "output", "o", "default", "Output format (default or json)")
	_ = composeCmd.MarkFlagRequired("intake")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(composeCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	if err := checkOutput(detectOutput); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	intake, err := loadIntake(intakePath)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	det, err := s.pipeline.Detect(ctx, intake)
	if err != nil {
		return printer.Error(
			"detection failed",
			err.Error(),
			[]string{"Check that the catalog is reachable and the intake typology is set"},
		)
	}

	if detectOutput == "json" {
		return listing.FormatSingleJSON(printer.Stdout(), det)
	}
	listing.FormatDetection(printer.Stdout(), det)
	return nil
}

func runCompose(cmd *cobra.Command, args []string) error {
	if err := checkOutput(planOutput); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	intake, err := loadIntake(intakePath)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.pipeline.Plan(ctx, intake)
	if err != nil {
		return composeError(err)
	}

	if planOutput == "json" {
		return listing.FormatSingleJSON(printer.Stdout(), res.Plan)
	}
	if res.Plan.Fallback != "" {
		printer.Warning("No template could be used; serving the %s fallback\n", res.Plan.Fallback)
	}
	listing.FormatPlan(printer.Stdout(), res.Plan)
	return nil
}

// composeError renders resolver failures with the chain that caused them.
func composeError(err error) error {
	var nf *resolver.NotFoundError
	if errors.As(err, &nf) {
		ctx := map[string]string{"Template": nf.TemplateID}
		if nf.RequiredBy != "" {
			ctx["Required by"] = nf.RequiredBy
		}
		return printer.ErrorWithContext(
			"missing template",
			err.Error(),
			ctx,
			[]string{
				"Import the missing template:\n  atelier catalog import <dir>",
				"Or remove it from depends_on of the template that requires it",
			},
		)
	}

	var cyc *resolver.CyclicDependencyError
	if errors.As(err, &cyc) {
		return printer.ErrorWithContext(
			"dependency cycle",
			err.Error(),
			map[string]string{"Chain": strings.Join(cyc.Chain, " -> ")},
			[]string{"Break the cycle by editing depends_on in one of the templates listed"},
		)
	}

	return printer.Error("composition failed", err.Error(), nil)
}

func loadIntake(path string) (*catalog.Intake, error) {
	var intake catalog.Intake
	if err := readYAML(path, &intake); err != nil {
		return nil, printer.Error(
			"invalid intake",
			err.Error(),
			[]string{"An intake needs at least a typology:\n  typology: residential"},
		)
	}
	if strings.TrimSpace(intake.Typology) == "" {
		return nil, printer.Error("invalid intake", fmt.Sprintf("%s has no typology", path), nil)
	}
	return &intake, nil
}

func checkOutput(format string) error {
	if format != "default" && format != "json" {
		return fmt.Errorf("invalid output format: %s (must be 'default' or 'json')", format)
	}
	return nil
}
