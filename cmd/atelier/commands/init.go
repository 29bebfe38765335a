package commands

import (
	"fmt"

	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Initialize a new atelier project",
	Long: `Initialize a new atelier project with default configuration and example templates.

Creates:
  • atelier.yml - Project configuration file (files catalog source)
  • intake.yml - Example project intake
  • templates/ - Example residential and fallback templates

Use --force to reinitialize an existing project (WARNING: destroys existing configuration).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (removes existing atelier.yml and templates/)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	if !forceInit {
		if err := scaffold.CheckExisting(dir); err != nil {
			return printer.Error("project already initialized", err.Error(), nil)
		}
	}

	if err := scaffold.Initialize(dir, forceInit, printer.Stdout()); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(printer.Stdout())
	return nil
}
