package listing

import (
	"context"
	"fmt"
	"testing"

	"github.com/dyluth/atelier/internal/testutil"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTemplateID(t *testing.T) {
	client, _ := testutil.NewRedisCatalog(t)
	ctx := context.Background()
	for _, tmpl := range []*catalog.TemplateDescriptor{testutil.CasaSimples(), testutil.ProjetoEletrico(), testutil.Paisagismo()} {
		require.NoError(t, client.PutTemplate(ctx, tmpl))
	}

	tests := []struct {
		name    string
		ref     string
		want    string
		checkFn func(error) bool
	}{
		{name: "exact id", ref: "CASA_SIMPLES", want: "CASA_SIMPLES"},
		{name: "unique prefix", ref: "casa", want: "CASA_SIMPLES"},
		{name: "no match", ref: "JARDIM", checkFn: IsNotFound},
		{name: "ambiguous", ref: "P", checkFn: IsAmbiguousError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTemplateID(ctx, client, tt.ref)
			if tt.checkFn != nil {
				require.Error(t, err)
				assert.True(t, tt.checkFn(err), "unexpected error type: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAmbiguousError(t *testing.T) {
	short := FormatAmbiguousError(&AmbiguousError{Prefix: "P", Matches: []string{"PAISAGISMO", "PROJETO_ELETRICO"}})
	assert.Contains(t, short, "prefix 'P' matches 2 templates")
	assert.Contains(t, short, "  PROJETO_ELETRICO\n")

	var many []string
	for i := 0; i < 12; i++ {
		many = append(many, fmt.Sprintf("T%02d", i))
	}
	long := FormatAmbiguousError(&AmbiguousError{Prefix: "T", Matches: many})
	assert.Contains(t, long, "...and 2 more")
	assert.NotContains(t, long, "T11")
}
