package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/dyluth/atelier/internal/scorer"
	"github.com/dyluth/atelier/internal/testutil"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/dyluth/atelier/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tmpl(id string, deps ...string) *catalog.TemplateDescriptor {
	return &catalog.TemplateDescriptor{
		ID:           id,
		Name:         id,
		Typology:     "residential",
		Dependencies: deps,
		Incompatible: []string{},
	}
}

func incompatible(t *catalog.TemplateDescriptor, ids ...string) *catalog.TemplateDescriptor {
	t.Incompatible = ids
	return t
}

func newResolver(t *testing.T, templates ...*catalog.TemplateDescriptor) (*Resolver, *testutil.MemoryCatalog) {
	t.Helper()
	cat := testutil.NewMemoryCatalog(templates...)
	r, err := New(cat, scorer.New(scorer.Config{}), nil)
	require.NoError(t, err)
	return r, cat
}

func TestResolve_DependenciesFirst(t *testing.T) {
	r, _ := newResolver(t,
		tmpl("A", "B", "C"),
		tmpl("B", "D"),
		tmpl("C", "D"),
		tmpl("D"),
		tmpl("E"),
	)

	res, err := r.Resolve(context.Background(), []Seed{{"A", 0.9}, {"E", 0.4}})
	require.NoError(t, err)

	assert.Equal(t, []string{"D", "B", "C", "A", "E"}, res.IDs)
	assert.Equal(t, []string{"B", "D", "C"}, res.Pulled)
	assert.Empty(t, res.Removed)

	// Dependencies inherit the best score of the seeds reaching them.
	assert.Equal(t, 0.9, res.Scores["D"])
	assert.Equal(t, 0.4, res.Scores["E"])
}

func TestResolve_InheritsBestSeedScore(t *testing.T) {
	r, _ := newResolver(t, tmpl("LOW", "SHARED"), tmpl("HIGH", "SHARED"), tmpl("SHARED"))

	res, err := r.Resolve(context.Background(), []Seed{{"LOW", 0.3}, {"HIGH", 0.85}})
	require.NoError(t, err)
	assert.Equal(t, 0.85, res.Scores["SHARED"])
}

func TestResolve_Cycle(t *testing.T) {
	r, _ := newResolver(t, tmpl("A", "B"), tmpl("B", "A"))

	_, err := r.Resolve(context.Background(), []Seed{{"A", 1}})
	require.Error(t, err)
	assert.True(t, IsCyclicDependencyError(err))

	var ce *CyclicDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"A", "B", "A"}, ce.Chain)
	assert.Contains(t, err.Error(), "A")
	assert.Contains(t, err.Error(), "B")
}

func TestResolve_LongerCycleReportsOnlyTheLoop(t *testing.T) {
	r, _ := newResolver(t, tmpl("ROOT", "X"), tmpl("X", "Y"), tmpl("Y", "Z"), tmpl("Z", "X"))

	_, err := r.Resolve(context.Background(), []Seed{{"ROOT", 1}})
	var ce *CyclicDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"X", "Y", "Z", "X"}, ce.Chain)
}

func TestResolve_DiamondIsNotACycle(t *testing.T) {
	r, _ := newResolver(t, tmpl("A", "B", "C"), tmpl("B", "D"), tmpl("C", "D"), tmpl("D"))

	_, err := r.Resolve(context.Background(), []Seed{{"A", 1}})
	assert.NoError(t, err)
}

func TestResolve_NotFound(t *testing.T) {
	r, _ := newResolver(t, tmpl("A", "GHOST"))

	_, err := r.Resolve(context.Background(), []Seed{{"A", 1}})
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "GHOST", nf.TemplateID)
	assert.Equal(t, "A", nf.RequiredBy)
	assert.True(t, catalog.IsNotFound(err))
}

func TestResolve_UnavailableDependencyIsRecorded(t *testing.T) {
	r, cat := newResolver(t, tmpl("A", "FLAKY"), tmpl("FLAKY"))
	cat.Fail("FLAKY", errors.New("i/o timeout"))

	res, err := r.Resolve(context.Background(), []Seed{{"A", 1}})
	require.NoError(t, err)
	assert.Equal(t, []Removal{{TemplateID: "FLAKY", Reason: ReasonUnavailable, Cause: "A"}}, res.Removed[:1])
	assert.NotContains(t, res.IDs, "FLAKY")
}

func TestResolve_Incompatibility(t *testing.T) {
	tests := []struct {
		name    string
		seeds   []Seed
		kept    []string
		removed string
	}{
		{"lower score loses", []Seed{{"REFORMA", 0.6}, {"OBRA_NOVA", 0.9}}, []string{"OBRA_NOVA"}, "REFORMA"},
		{"tie keeps first discovered", []Seed{{"REFORMA", 0.7}, {"OBRA_NOVA", 0.7}}, []string{"REFORMA"}, "OBRA_NOVA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newResolver(t, incompatible(tmpl("REFORMA"), "OBRA_NOVA"), tmpl("OBRA_NOVA"))

			res, err := r.Resolve(context.Background(), tt.seeds)
			require.NoError(t, err)
			assert.Equal(t, tt.kept, res.IDs)
			require.Len(t, res.Removed, 1)
			assert.Equal(t, tt.removed, res.Removed[0].TemplateID)
			assert.Equal(t, ReasonIncompatible, res.Removed[0].Reason)
		})
	}
}

func TestResolve_IncompatibilityCascadesToDependents(t *testing.T) {
	r, _ := newResolver(t,
		incompatible(tmpl("BASE_A"), "BASE_B"),
		tmpl("BASE_B"),
		tmpl("ADDON", "BASE_B"),
		tmpl("ADDON_2", "ADDON"),
	)

	res, err := r.Resolve(context.Background(), []Seed{{"BASE_A", 0.95}, {"ADDON_2", 0.6}})
	require.NoError(t, err)

	assert.Equal(t, []string{"BASE_A"}, res.IDs)
	assert.Equal(t, []Removal{
		{TemplateID: "BASE_B", Reason: ReasonIncompatible, Cause: "BASE_A"},
		{TemplateID: "ADDON", Reason: ReasonDependencyRemoved, Cause: "BASE_B"},
		{TemplateID: "ADDON_2", Reason: ReasonDependencyRemoved, Cause: "ADDON"},
	}, res.Removed)
}

func TestResolve_DependencyOnlyTemplateUsesInheritedScore(t *testing.T) {
	// LEGAL is pulled in by HIGH (0.9) and is incompatible with SEED (0.5).
	r, _ := newResolver(t, tmpl("HIGH", "LEGAL"), tmpl("LEGAL"), incompatible(tmpl("SEED"), "LEGAL"))

	res, err := r.Resolve(context.Background(), []Seed{{"HIGH", 0.9}, {"SEED", 0.5}})
	require.NoError(t, err)
	assert.Equal(t, []string{"LEGAL", "HIGH"}, res.IDs)
	assert.Equal(t, "SEED", res.Removed[0].TemplateID)
}

func task(id, templateID, name string, deps ...string) plan.Task {
	return plan.Task{ID: id, TemplateID: templateID, Name: name, DependsOn: deps}
}

func TestDedup(t *testing.T) {
	r, _ := newResolver(t)

	tasks := []plan.Task{
		task("CASA/T01", "CASA", "Site survey"),
		task("CASA/T02", "CASA", "Site survey report", "CASA/T01"),
		task("ELET/T01", "ELET", "Site Survey"),
		task("ELET/T02", "ELET", "Lighting layout", "ELET/T01", "CASA/T01"),
	}

	res := r.Dedup(tasks)

	ids := make([]string, len(res.Tasks))
	for i, tk := range res.Tasks {
		ids[i] = tk.ID
	}
	assert.Equal(t, []string{"CASA/T01", "CASA/T02", "ELET/T02"}, ids, "tasks of the same template are never merged")

	require.Len(t, res.Alternates, 1)
	alt := res.Alternates[0]
	assert.Equal(t, "ELET/T01", alt.Task.ID)
	assert.Equal(t, "CASA/T01", alt.DuplicateOf)
	assert.Equal(t, 1.0, alt.Score)

	assert.Equal(t, []string{"CASA/T01"}, res.Tasks[2].DependsOn, "remapped dependency is not repeated")
	assert.Equal(t, []string{"ELET/T01", "CASA/T01"}, tasks[3].DependsOn, "input is not mutated")
}

func TestDedup_NoDuplicates(t *testing.T) {
	r, _ := newResolver(t)
	tasks := []plan.Task{
		task("A/T01", "A", "Briefing"),
		task("B/T01", "B", "Structural calculation"),
	}

	res := r.Dedup(tasks)
	assert.Len(t, res.Tasks, 2)
	assert.Empty(t, res.Alternates)
	assert.Empty(t, res.Remap)
}

func TestDedup_MergesDependenciesAndAvoidsCycles(t *testing.T) {
	r, _ := newResolver(t)

	tasks := []plan.Task{
		task("A/T1", "A", "Design review", "B/U1"),
		task("A/T2", "A", "Site survey", "A/T1"),
		task("B/U0", "B", "Permit research"),
		task("B/U1", "B", "Site survey", "B/U0"),
		task("C/V1", "C", "Site survey", "B/U0"),
	}

	res := r.Dedup(tasks)

	ids := make([]string, len(res.Tasks))
	for i, tk := range res.Tasks {
		ids[i] = tk.ID
	}
	assert.Equal(t, []string{"A/T1", "A/T2", "B/U0", "B/U1"}, ids, "A/T2 reaches B/U1 and stays separate")

	require.Len(t, res.Alternates, 1)
	assert.Equal(t, "C/V1", res.Alternates[0].Task.ID)
	assert.Equal(t, "A/T2", res.Alternates[0].DuplicateOf, "first kept task that is not on its chain")
	assert.Equal(t, []string{"A/T1", "B/U0"}, res.Tasks[1].DependsOn, "kept task inherits the alternate's dependencies")
	assert.Equal(t, []string{"A/T1"}, tasks[1].DependsOn, "input is not mutated")
}

func TestResolve_IncompatibilityDropsDependenciesNoLongerNeeded(t *testing.T) {
	r, _ := newResolver(t,
		incompatible(tmpl("P"), "S"),
		tmpl("S", "X"),
		tmpl("X", "D"),
		tmpl("D"),
	)
	// SHARED is still needed by KEEP after S is dropped.
	r2, _ := newResolver(t,
		incompatible(tmpl("P"), "S"),
		tmpl("S", "SHARED"),
		tmpl("SHARED"),
		tmpl("KEEP", "SHARED"),
	)

	res, err := r.Resolve(context.Background(), []Seed{{"P", 0.9}, {"S", 0.5}})
	require.NoError(t, err)

	assert.Equal(t, []string{"P"}, res.IDs)
	assert.Empty(t, res.Pulled)
	assert.Equal(t, []Removal{
		{TemplateID: "S", Reason: ReasonIncompatible, Cause: "P"},
		{TemplateID: "D", Reason: ReasonDependencyRemoved, Cause: "X"},
		{TemplateID: "X", Reason: ReasonDependencyRemoved, Cause: "S"},
	}, res.Removed)

	res, err = r2.Resolve(context.Background(), []Seed{{"P", 0.9}, {"S", 0.5}, {"KEEP", 0.4}})
	require.NoError(t, err)
	assert.Equal(t, []string{"P", "SHARED", "KEEP"}, res.IDs)
	assert.Equal(t, []string{"SHARED"}, res.Pulled)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, "S", res.Removed[0].TemplateID)
}
