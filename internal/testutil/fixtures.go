// Package testutil holds catalog fixtures and store helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// TestTenant is the tenant namespace used by Redis-backed tests.
const TestTenant = "test-firm"

// CasaSimples is the reference residential template: four stages of three
// sequential tasks, 20 units each, base duration 240.
func CasaSimples() *catalog.TemplateDescriptor {
	stages := []struct{ id, name string }{
		{"S1", "Briefing"},
		{"S2", "Preliminary design"},
		{"S3", "Executive design"},
		{"S4", "Delivery"},
	}
	taskNames := [][]string{
		{"Client interview", "Site survey", "Program of needs"},
		{"Massing study", "Preliminary floor plans", "Client review of preliminary"},
		{"Executive drawings", "Detailing", "Bill of quantities"},
		{"Permit submission", "Final handover", "As-built archive"},
	}
	roles := []string{"architect", "drafter", "architect"}

	t := &catalog.TemplateDescriptor{
		ID:           "CASA_SIMPLES",
		Name:         "Casa Simples",
		Category:     "architecture",
		Typology:     "residential",
		Keywords:     []string{"residential", "house", "simple"},
		BaseDuration: 240,
		Priority:     10,
		Multipliers: catalog.MultiplierTable{
			Complexity: map[catalog.Level]float64{catalog.LevelLow: 0.8, catalog.LevelHigh: 1.3},
			Scale:      map[catalog.Level]float64{catalog.LevelHigh: 1.5},
		},
		Dependencies: []string{},
		Incompatible: []string{},
	}

	n := 0
	prev := ""
	for i, s := range stages {
		stage := catalog.StageTemplate{ID: s.id, Name: s.name}
		for j, name := range taskNames[i] {
			n++
			task := catalog.TaskTemplate{
				ID:       fmt.Sprintf("T%02d", n),
				Name:     name,
				Role:     roles[j],
				Duration: 20,
			}
			if prev != "" {
				task.DependsOn = []string{prev}
			}
			if name == "Client review of preliminary" {
				task.ApprovalRequired = true
			}
			prev = task.ID
			stage.Tasks = append(stage.Tasks, task)
		}
		t.Stages = append(t.Stages, stage)
	}
	return t
}

// ProjetoEletrico is a complementary engineering template that depends on
// CasaSimples's executive drawings.
func ProjetoEletrico() *catalog.TemplateDescriptor {
	return &catalog.TemplateDescriptor{
		ID:           "PROJETO_ELETRICO",
		Name:         "Projeto Elétrico",
		Category:     "engineering",
		Typology:     "residential",
		Keywords:     []string{"residential", "electrical", "lighting", "automation"},
		BaseDuration: 40,
		Priority:     20,
		Dependencies: []string{"CASA_SIMPLES"},
		Incompatible: []string{},
		Stages: []catalog.StageTemplate{
			{ID: "S1", Name: "Electrical design", Tasks: []catalog.TaskTemplate{
				{ID: "T01", Name: "Load calculation", Role: "engineer", Duration: 10, DependsOn: []string{"CASA_SIMPLES/T07"}},
				{ID: "T02", Name: "Lighting layout", Role: "engineer", Duration: 15, DependsOn: []string{"T01"}},
				{ID: "T03", Name: "Site survey", Role: "engineer", Duration: 5},
			}},
		},
	}
}

// Paisagismo is an optional landscaping template with no dependencies.
func Paisagismo() *catalog.TemplateDescriptor {
	return &catalog.TemplateDescriptor{
		ID:           "PAISAGISMO",
		Name:         "Paisagismo",
		Category:     "landscape",
		Typology:     "residential",
		Keywords:     []string{"garden", "landscape", "residential"},
		BaseDuration: 30,
		Priority:     30,
		Dependencies: []string{},
		Incompatible: []string{},
		Stages: []catalog.StageTemplate{
			{ID: "S1", Name: "Landscape", Tasks: []catalog.TaskTemplate{
				{ID: "T01", Name: "Planting plan", Role: "landscaper", Duration: 12},
			}},
		},
	}
}

// MemoryCatalog is an in-memory template registry for tests. It implements the
// registry and fetch shapes used by the detector, resolver and loader.
type MemoryCatalog struct {
	mu        sync.Mutex
	templates map[string]*catalog.TemplateDescriptor
	order     map[string][]string
	fetches   map[string]int
	failing   map[string]error
}

// NewMemoryCatalog creates a catalog holding templates, registered in order.
func NewMemoryCatalog(templates ...*catalog.TemplateDescriptor) *MemoryCatalog {
	m := &MemoryCatalog{
		templates: make(map[string]*catalog.TemplateDescriptor),
		order:     make(map[string][]string),
		fetches:   make(map[string]int),
		failing:   make(map[string]error),
	}
	for _, t := range templates {
		m.Add(t)
	}
	return m
}

// Add registers t under its typology. Re-adding keeps the original position.
func (m *MemoryCatalog) Add(t *catalog.TemplateDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.templates[t.ID]; !exists {
		m.order[t.Typology] = append(m.order[t.Typology], t.ID)
	}
	m.templates[t.ID] = t
}

// Fail makes every fetch of id return err.
func (m *MemoryCatalog) Fail(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[id] = err
}

// TemplateIDs returns ids registered under typology in registration order.
func (m *MemoryCatalog) TemplateIDs(ctx context.Context, typology string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order[typology]...), nil
}

// Fetch returns the template for id, or an error when it is unknown or failing.
func (m *MemoryCatalog) Fetch(ctx context.Context, id string) (*catalog.TemplateDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[id]++
	if err, ok := m.failing[id]; ok {
		return nil, err
	}
	t, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s not found in catalog: %w", id, redis.Nil)
	}
	return t, nil
}

// Lookup is Fetch under the name the resolver expects.
func (m *MemoryCatalog) Lookup(ctx context.Context, id string) (*catalog.TemplateDescriptor, error) {
	return m.Fetch(ctx, id)
}

// Get is Fetch without the error, for callers that expect a never-failing source.
func (m *MemoryCatalog) Get(ctx context.Context, id string) *catalog.TemplateDescriptor {
	t, err := m.Fetch(ctx, id)
	if err != nil {
		return m.Fallback()
	}
	return t
}

// Fallback returns the descriptor Get serves for failed fetches.
func (m *MemoryCatalog) Fallback() *catalog.TemplateDescriptor {
	return &catalog.TemplateDescriptor{
		ID:       "GENERIC",
		Name:     "Generic project",
		Typology: "generic",
		Fallback: true,
		Stages: []catalog.StageTemplate{{ID: "S1", Name: "Briefing", Tasks: []catalog.TaskTemplate{
			{ID: "T01", Name: "Project briefing", Role: "architect"},
		}}},
	}
}

// Fetches returns how many times id was fetched.
func (m *MemoryCatalog) Fetches(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[id]
}

// IDs returns every known template id, sorted.
func (m *MemoryCatalog) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.templates))
	for id := range m.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NewRedisCatalog starts a miniredis server and returns a catalog client bound
// to it. Both are closed when the test ends.
func NewRedisCatalog(t *testing.T) (*catalog.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := catalog.NewClient(&redis.Options{Addr: mr.Addr()}, TestTenant)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}
