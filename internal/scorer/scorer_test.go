package scorer

import (
	"math"
	"testing"

	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func casaSimples() *catalog.TemplateDescriptor {
	return &catalog.TemplateDescriptor{
		ID:       "CASA_SIMPLES",
		Name:     "Casa Simples",
		Category: "architecture",
		Typology: "residential",
		Keywords: []string{"residential", "house", "simple", "single family"},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Casa Simples", "casa simples"},
		{"Reforma de Cozinha!", "reforma de cozinha"},
		{"Projeto Elétrico   & Hidráulico", "projeto eletrico hidraulico"},
		{"  --  ", ""},
		{"ÁREA_Útil 120m2", "area util 120m2"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestScore(t *testing.T) {
	s := New(Config{})
	tmpl := casaSimples()

	tests := []struct {
		name string
		text string
		want float64
	}{
		{"no signal", "commercial office fit-out", 0},
		{"half of the keywords", "residential house", 0.5},
		{"all keywords", "simple residential house, single family", 1},
		{"category adds bonus", "residential house architecture", 0.6},
		{"display name lifts to floor", "casa simples", 0.9},
		{"display name ignores accents and case", "CÁSA simples", 0.9},
		{"name bonus above floor", "casa simples residential house simple", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Score(tt.text, tmpl), 1e-9)
		})
	}
}

func TestScore_RangeAndDeterminism(t *testing.T) {
	s := New(Config{CategoryBonus: 5, NameBonus: 5})
	tmpl := casaSimples()
	texts := []string{"", "casa simples architecture residential house simple single family", "x"}

	for _, text := range texts {
		first := s.Score(text, tmpl)
		assert.GreaterOrEqual(t, first, 0.0)
		assert.LessOrEqual(t, first, 1.0)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, s.Score(text, tmpl))
		}
	}
}

func TestScore_NoKeywordsUsesNameOnly(t *testing.T) {
	s := New(Config{})
	tmpl := &catalog.TemplateDescriptor{ID: "LOJA", Name: "Loja"}

	assert.Equal(t, 0.0, s.Score("apartment", tmpl))
	assert.Equal(t, 0.9, s.Score("nova loja centro", tmpl))
}

func TestMatch_NameAndCategoryMatchInsideLongerWords(t *testing.T) {
	s := New(Config{})
	tmpl := &catalog.TemplateDescriptor{ID: "PAISAGISMO", Name: "Paisagismo", Category: "landscape"}

	m := s.Match("landscaped courtyard", tmpl)
	assert.True(t, m.CategoryMatch)
	assert.False(t, m.NameMatch)
	assert.InDelta(t, 0.1, m.Score, 1e-9)

	m = s.Match("projeto paisagismos urbanos", tmpl)
	assert.True(t, m.NameMatch)
	assert.InDelta(t, 0.9, m.Score, 1e-9)
}

func TestMatch_Rationale(t *testing.T) {
	s := New(Config{})
	m := s.Match("Residential simple house designed by the architecture team", casaSimples())

	assert.Equal(t, "CASA_SIMPLES", m.TemplateID)
	assert.Equal(t, []string{"residential", "house", "simple"}, m.Matched)
	assert.True(t, m.CategoryMatch)
	assert.False(t, m.NameMatch)
	assert.NoError(t, m.Validate())
}

func TestRank(t *testing.T) {
	s := New(Config{})
	templates := []*catalog.TemplateDescriptor{
		{ID: "B_HOUSE", Name: "Plan B", Keywords: []string{"house", "garden"}},
		{ID: "C_HOUSE", Name: "Plan C", Keywords: []string{"house", "pool"}},
		{ID: "A_HOUSE", Name: "Plan A", Keywords: []string{"house", "pool"}},
		{ID: "OFFICE", Name: "Office", Keywords: []string{"office"}},
		casaSimples(), // 0.25, below the default minimum
	}

	ranked := s.Rank("house with garden", templates)
	require.Len(t, ranked, 3)

	ids := make([]string, len(ranked))
	for i, m := range ranked {
		ids[i] = m.TemplateID
	}
	// B_HOUSE scores 1.0; A_HOUSE and C_HOUSE tie at 0.5 and are ordered by id.
	assert.Equal(t, []string{"B_HOUSE", "A_HOUSE", "C_HOUSE"}, ids)
}

func TestRank_DropsBelowMinRelevance(t *testing.T) {
	s := New(Config{MinRelevance: 0.6})
	ranked := s.Rank("house", []*catalog.TemplateDescriptor{casaSimples()})
	assert.Empty(t, ranked)
}

func TestSimilarity(t *testing.T) {
	s := New(Config{})

	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
		dupe bool
	}{
		{"identical after normalization", "Levantamento Topográfico", "levantamento topografico", 1, 1, true},
		{"containment", "Site survey", "Site survey and measurement", 0.9, 0.9, true},
		{"partial overlap", "Electrical design", "Plumbing design", 0.5, 0.5, false},
		{"disjoint", "Briefing", "Handover", 0, 0, false},
		{"empty", "", "Briefing", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dupe := s.IsDuplicate(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
			assert.Equal(t, tt.dupe, dupe)
			assert.Equal(t, got, s.Similarity(tt.b, tt.a), "similarity is symmetric")
		})
	}
}

func TestCandidateMatch_Validate(t *testing.T) {
	for _, score := range []float64{-0.1, 1.01, math.NaN()} {
		err := CandidateMatch{TemplateID: "X", Score: score}.Validate()
		var rangeErr *ScoreOutOfRangeError
		require.ErrorAs(t, err, &rangeErr)
		assert.Equal(t, "X", rangeErr.TemplateID)
	}
	assert.NoError(t, CandidateMatch{Score: 0}.Validate())
	assert.NoError(t, CandidateMatch{Score: 1}.Validate())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3))
	assert.Equal(t, 1.0, Clamp(7))
	assert.Equal(t, 0.0, Clamp(math.NaN()))
	assert.Equal(t, 0.42, Clamp(0.42))
}
