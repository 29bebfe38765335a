package listing

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dyluth/atelier/internal/testutil"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatKeywords(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		expected string
	}{
		{"empty", nil, "-"},
		{"short", []string{"house", "simple"}, "house,simple"},
		{"exactly 30 chars", []string{strings.Repeat("a", 30)}, strings.Repeat("a", 30)},
		{"31 chars - should truncate", []string{strings.Repeat("a", 31)}, strings.Repeat("a", 27) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatKeywords(tt.keywords))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "240", formatNumber(240))
	assert.Equal(t, "14.4", formatNumber(14.4))
	assert.Equal(t, "0", formatNumber(0))
}

func TestFormatTable(t *testing.T) {
	t.Run("empty templates", func(t *testing.T) {
		var buf bytes.Buffer
		count := FormatTable(&buf, nil)

		assert.Contains(t, buf.String(), "No templates found")
		assert.Equal(t, 0, count)
	})

	t.Run("single template", func(t *testing.T) {
		var buf bytes.Buffer
		count := FormatTable(&buf, []*catalog.TemplateDescriptor{testutil.CasaSimples()})

		output := buf.String()
		assert.Contains(t, output, "CASA_SIMPLES")
		assert.Contains(t, output, "residential")
		assert.Contains(t, output, "architecture")
		assert.Contains(t, output, "240")
		assert.Contains(t, output, "residential,house,simple")
		assert.Contains(t, output, "1 template found")
		assert.Equal(t, 1, count)
	})

	t.Run("multiple templates", func(t *testing.T) {
		var buf bytes.Buffer
		count := FormatTable(&buf, []*catalog.TemplateDescriptor{testutil.CasaSimples(), testutil.Paisagismo()})

		assert.Contains(t, buf.String(), "2 templates found")
		assert.Equal(t, 2, count)
	})
}

func TestFormatJSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatJSONL(&buf, []*catalog.TemplateDescriptor{testutil.CasaSimples(), testutil.Paisagismo()}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first catalog.TemplateDescriptor
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "CASA_SIMPLES", first.ID)
	assert.Equal(t, 12, first.TaskCount())
}

func TestFormatSingleJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatSingleJSON(&buf, testutil.Paisagismo()))

	output := buf.String()
	assert.Contains(t, output, "\n  \"id\": \"PAISAGISMO\"")
	assert.True(t, strings.HasSuffix(output, "}\n"))
}
