// Package scaffold creates a starter atelier project: configuration, a
// template directory with examples and a sample intake.
package scaffold

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dyluth/atelier/internal/catalogfs"
	"github.com/dyluth/atelier/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// Paths created by Initialize, relative to the project directory.
const (
	ConfigFile  = "atelier.yml"
	TemplateDir = "templates"
	IntakeFile  = "intake.yml"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the project structure under dir.
// If force is true, it will remove an existing atelier.yml and templates/ directory
func Initialize(dir string, force bool, w io.Writer) error {
	if force {
		if err := handleForce(dir, w); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(dir, TemplateDir), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", TemplateDir, err)
	}

	for _, file := range files {
		path := filepath.Join(dir, file.Path)
		if err := os.WriteFile(path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return validateCreatedFiles(dir)
}

// handleForce removes existing files if --force was specified
func handleForce(dir string, w io.Writer) error {
	if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil {
		fmt.Fprintf(w, "⚠️  Removing existing %s...\n", ConfigFile)
		if err := os.Remove(filepath.Join(dir, ConfigFile)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
		}
	}

	if info, err := os.Stat(filepath.Join(dir, TemplateDir)); err == nil && info.IsDir() {
		fmt.Fprintf(w, "⚠️  Removing existing %s/ directory...\n", TemplateDir)
		if err := os.RemoveAll(filepath.Join(dir, TemplateDir)); err != nil {
			return fmt.Errorf("failed to remove %s/ directory: %w", TemplateDir, err)
		}
	}

	return nil
}

// getTemplateFiles maps every embedded file to its project path.
func getTemplateFiles() ([]FileInfo, error) {
	sources := []struct{ embedded, path string }{
		{"atelier.yml.tmpl", ConfigFile},
		{"intake.yml.tmpl", IntakeFile},
		{"CASA_SIMPLES.yml.tmpl", filepath.Join(TemplateDir, "CASA_SIMPLES.yml")},
		{"BRIEFING.yml.tmpl", filepath.Join(TemplateDir, "BRIEFING.yml")},
	}

	files := make([]FileInfo, 0, len(sources))
	for _, s := range sources {
		content, err := templatesFS.ReadFile("templates/" + s.embedded)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", s.embedded, err)
		}
		files = append(files, FileInfo{Path: s.path, Content: content, Permissions: 0644})
	}
	return files, nil
}

// validateCreatedFiles loads the written configuration and templates the way
// the commands will.
func validateCreatedFiles(dir string) error {
	if _, err := catalogfs.ReadDir(filepath.Join(dir, TemplateDir)); err != nil {
		return fmt.Errorf("created templates are invalid: %w", err)
	}

	// The configuration names its template dir relative to the project
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := os.Chdir(dir); err != nil {
		return err
	}
	defer os.Chdir(wd)

	if _, err := config.Load(ConfigFile); err != nil {
		return fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}
	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess(w io.Writer) {
	fmt.Fprintln(w, "\n✅ Successfully initialized atelier project!")
	fmt.Fprintln(w, "\nCreated:")
	fmt.Fprintf(w, "  ✓ %s\n", ConfigFile)
	fmt.Fprintf(w, "  ✓ %s\n", IntakeFile)
	fmt.Fprintf(w, "  ✓ %s/CASA_SIMPLES.yml\n", TemplateDir)
	fmt.Fprintf(w, "  ✓ %s/BRIEFING.yml\n", TemplateDir)
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Add your studio's templates to templates/")
	fmt.Fprintln(w, "  2. Run 'atelier compose --intake intake.yml'")
	fmt.Fprintln(w, "  3. Switch catalog.source to redis or sqlite and run 'atelier catalog import templates'")
}
