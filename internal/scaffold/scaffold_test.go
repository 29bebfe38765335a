package scaffold

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/atelier/internal/catalogfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		setupFunc func(string)
	}{
		{
			name:      "fresh initialization",
			setupFunc: func(dir string) {},
		},
		{
			name:  "force initialization removes existing files",
			force: true,
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644)
				os.MkdirAll(filepath.Join(dir, TemplateDir), 0755)
				os.WriteFile(filepath.Join(dir, TemplateDir, "OLD.yml"), []byte("id: OLD"), 0644)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setupFunc(dir)

			var out bytes.Buffer
			require.NoError(t, Initialize(dir, tt.force, &out))

			for _, path := range []string{ConfigFile, IntakeFile, "templates/CASA_SIMPLES.yml", "templates/BRIEFING.yml"} {
				assert.FileExists(t, filepath.Join(dir, path))
			}
			assert.NoFileExists(t, filepath.Join(dir, TemplateDir, "OLD.yml"))

			templates, err := catalogfs.ReadDir(filepath.Join(dir, TemplateDir))
			require.NoError(t, err)
			assert.Len(t, templates, 2)

			if tt.force {
				assert.Contains(t, out.String(), "Removing existing atelier.yml")
			}
		})
	}
}

func TestCheckExisting(t *testing.T) {
	t.Run("clean directory", func(t *testing.T) {
		assert.NoError(t, CheckExisting(t.TempDir()))
	})

	t.Run("config only", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("x"), 0644))

		err := CheckExisting(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Found existing: atelier.yml")
		assert.Contains(t, err.Error(), "atelier init --force")
	})

	t.Run("config and templates", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("x"), 0644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, TemplateDir), 0755))

		err := CheckExisting(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "  - templates/")
	})
}

func TestPrintSuccess(t *testing.T) {
	var out bytes.Buffer
	PrintSuccess(&out)
	assert.Contains(t, out.String(), "Successfully initialized atelier project")
	assert.Contains(t, out.String(), "templates/CASA_SIMPLES.yml")
}
