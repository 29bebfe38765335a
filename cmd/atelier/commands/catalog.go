package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/atelier/internal/catalogfs"
	"github.com/dyluth/atelier/internal/filter"
	"github.com/dyluth/atelier/internal/listing"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/internal/watch"
	"github.com/spf13/cobra"
)

var (
	listOutput   string
	listTypology string
	listID       string
	listCategory string
	listKeyword  string

	importWait    bool
	importTimeout time.Duration
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and maintain the template catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog templates with filtering",
	Long: `List templates as a table or JSONL stream.

Output Formats:
  default - Human-readable table with ID, typology, category and task count
  jsonl   - Line-delimited JSON, one template per line

Examples:
  atelier catalog list --typology residential
  atelier catalog list --id "CASA_*" -o jsonl | jq .id`,
	Args: cobra.NoArgs,
	RunE: runCatalogList,
}

var catalogGetCmd = &cobra.Command{
	Use:   "get TEMPLATE_ID",
	Short: "Show one template as JSON",
	Long: `Show one template as pretty-printed JSON.

TEMPLATE_ID may be a unique case-insensitive prefix (e.g. "casa" for CASA_SIMPLES).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogGet,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import DIR",
	Short: "Register every YAML template of a directory",
	Long: `Validate and register every *.yml / *.yaml template in DIR.

Registering an existing id replaces the template but keeps its place in
the registration order. With --wait the command polls until each imported
template is readable back from Redis.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogImport,
}

var catalogExportCmd = &cobra.Command{
	Use:   "export DIR",
	Short: "Write every template to DIR as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogExport,
}

var catalogDeleteCmd = &cobra.Command{
	Use:   "delete TEMPLATE_ID",
	Short: "Remove a template from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogDelete,
}

func init() {
	catalogListCmd.Flags().StringVarP(&listOutput, "output", "o", "default", "Output format: default or jsonl")
	catalogListCmd.Flags().StringVar(&listTypology, "typology", "", "Filter by typology (exact match)")
	catalogListCmd.Flags().StringVar(&listID, "id", "", "Filter by template id (glob pattern)")
	catalogListCmd.Flags().StringVar(&listCategory, "category", "", "Filter by category (case-insensitive)")
	catalogListCmd.Flags().StringVar(&listKeyword, "keyword", "", "Filter by declared keyword (case-insensitive)")

	catalogImportCmd.Flags().BoolVar(&importWait, "wait", false, "Wait until imported templates are readable (redis only)")
	catalogImportCmd.Flags().DurationVar(&importTimeout, "timeout", 10*time.Second, "How long --wait polls for each template")

	catalogCmd.AddCommand(catalogListCmd, catalogGetCmd, catalogImportCmd, catalogExportCmd, catalogDeleteCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	format, err := listing.ParseFormat(listOutput)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", listOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	criteria := &filter.Criteria{
		IDGlob:   listID,
		Typology: listTypology,
		Category: listCategory,
		Keyword:  listKeyword,
	}
	return listing.ListTemplates(ctx, s.store, format, criteria, printer.Stdout())
}

func runCatalogGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	// Resolve a unique id prefix to the full id
	id, err := listing.ResolveTemplateID(ctx, s.store, args[0])
	if err == nil {
		err = listing.GetTemplate(ctx, s.store, id, printer.Stdout())
	}
	if err != nil {
		var ambiguous *listing.AmbiguousError
		switch {
		case listing.IsNotFound(err):
			return printer.Error(
				fmt.Sprintf("template with ID '%s' not found", args[0]),
				"The specified template does not exist in the catalog.",
				[]string{"List all templates:\n  atelier catalog list"},
			)
		case errors.As(err, &ambiguous):
			return printer.Error("ambiguous template ID", listing.FormatAmbiguousError(ambiguous), nil)
		}
		return err
	}
	return nil
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	templates, err := catalogfs.ReadDir(args[0])
	if err != nil {
		return printer.Error("import failed", err.Error(), nil)
	}
	if len(templates) == 0 {
		printer.Warning("No templates found in %s\n", args[0])
		return nil
	}

	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if importWait && s.redis == nil {
		return printer.Error("--wait needs a redis catalog", fmt.Sprintf("catalog.source is %q", s.cfg.Catalog.Source), nil)
	}

	for i, t := range templates {
		if err := s.put(ctx, t); err != nil {
			return printer.ErrorWithContext(
				"import failed",
				err.Error(),
				map[string]string{"Template": t.ID, "Imported": fmt.Sprintf("%d of %d", i, len(templates))},
				nil,
			)
		}
		printer.Step("Registered %s\n", t.ID)
	}

	if importWait {
		for _, t := range templates {
			if _, err := watch.WaitForTemplate(ctx, s.redis, t.ID, importTimeout); err != nil {
				return printer.Error("template not visible", err.Error(), nil)
			}
		}
	}

	printer.Success("Imported %d template(s) into %s\n", len(templates), s.cfg.Tenant)
	return nil
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}
	for _, t := range templates {
		path, err := catalogfs.WriteFile(dir, t)
		if err != nil {
			return err
		}
		printer.Step("Wrote %s\n", path)
	}

	printer.Success("Exported %d template(s) to %s\n", len(templates), dir)
	return nil
}

func runCatalogDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.remove(ctx, args[0]); err != nil {
		return printer.Error("delete failed", err.Error(), nil)
	}
	printer.Success("Deleted %s\n", args[0])
	return nil
}
