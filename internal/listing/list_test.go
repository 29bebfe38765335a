package listing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dyluth/atelier/internal/catalogdb"
	"github.com/dyluth/atelier/internal/filter"
	"github.com/dyluth/atelier/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTemplates_Redis(t *testing.T) {
	client, _ := testutil.NewRedisCatalog(t)
	ctx := context.Background()

	t.Run("empty catalog - default format", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ListTemplates(ctx, client, OutputFormatDefault, nil, &buf))
		assert.Contains(t, buf.String(), "No templates found")
	})

	require.NoError(t, client.PutTemplate(ctx, testutil.Paisagismo()))
	require.NoError(t, client.PutTemplate(ctx, testutil.ProjetoEletrico()))
	require.NoError(t, client.PutTemplate(ctx, testutil.CasaSimples()))

	t.Run("sorted by priority", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ListTemplates(ctx, client, OutputFormatDefault, nil, &buf))

		output := buf.String()
		casa := strings.Index(output, "CASA_SIMPLES")
		elet := strings.Index(output, "PROJETO_ELETRICO")
		pais := strings.Index(output, "PAISAGISMO")
		assert.True(t, casa < elet && elet < pais, "expected priority order, got:\n%s", output)
		assert.Contains(t, output, "3 templates found")
	})

	t.Run("filtered JSONL", func(t *testing.T) {
		var buf bytes.Buffer
		criteria := &filter.Criteria{Keyword: "electrical"}
		require.NoError(t, ListTemplates(ctx, client, OutputFormatJSONL, criteria, &buf))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], `"id":"PROJETO_ELETRICO"`)
	})

	t.Run("unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		err := ListTemplates(ctx, client, OutputFormat("xml"), nil, &buf)
		assert.Error(t, err)
	})
}

func TestGetTemplate_SQLite(t *testing.T) {
	store, err := catalogdb.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, testutil.CasaSimples()))

	t.Run("existing template", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, GetTemplate(ctx, store, "CASA_SIMPLES", &buf))
		assert.Contains(t, buf.String(), `"name": "Casa Simples"`)
	})

	t.Run("missing template", func(t *testing.T) {
		var buf bytes.Buffer
		err := GetTemplate(ctx, store, "NOPE", &buf)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Equal(t, "template with ID 'NOPE' not found", err.Error())
		assert.Empty(t, buf.String())
	})

	t.Run("empty id", func(t *testing.T) {
		err := GetTemplate(ctx, store, "", &bytes.Buffer{})
		require.Error(t, err)
		assert.False(t, IsNotFound(err))
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatDefault, f)

	f, err = ParseFormat("jsonl")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSONL, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}
