package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() *ComposedPlan {
	return &ComposedPlan{
		Stages: []Stage{
			{ID: "A/S1", TemplateID: "A", TaskIDs: []string{"A/T1", "A/T2"}},
			{ID: "A/S2", TemplateID: "A", TaskIDs: []string{"A/T3"}, Position: 1},
		},
		Tasks: []Task{
			{ID: "A/T1", StageID: "A/S1", Position: 0, Status: StatusDone},
			{ID: "A/T2", StageID: "A/S1", Position: 1, DependsOn: []string{"A/T1"}},
			{ID: "A/T3", StageID: "A/S2", Position: 2, DependsOn: []string{"A/T1", "A/T2"}},
		},
	}
}

func TestPlanValidate_Valid(t *testing.T) {
	require.NoError(t, samplePlan().Validate())
}

func TestPlanValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ComposedPlan)
		errMsg string
	}{
		{"empty", func(p *ComposedPlan) { p.Tasks = nil }, "at least one task"},
		{"duplicate id", func(p *ComposedPlan) { p.Tasks[1].ID = "A/T1" }, "duplicate task ID"},
		{"wrong position", func(p *ComposedPlan) { p.Tasks[2].Position = 7 }, "has position 7"},
		{"missing dependency", func(p *ComposedPlan) { p.Tasks[1].DependsOn = []string{"B/T9"} }, "does not exist in plan"},
		{"forward dependency", func(p *ComposedPlan) { p.Tasks[0].DependsOn = []string{"A/T3"} }, "ordered before its dependency"},
		{"stage with unknown task", func(p *ComposedPlan) { p.Stages[1].TaskIDs = []string{"A/T9"} }, "unknown task"},
		{"bad status", func(p *ComposedPlan) { p.Tasks[0].Status = "paused" }, "unknown task status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePlan()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestPlanLookups(t *testing.T) {
	p := samplePlan()

	task, ok := p.Task("A/T2")
	require.True(t, ok)
	assert.Equal(t, 1, task.Position)

	_, ok = p.Task("missing")
	assert.False(t, ok)

	stage, ok := p.Stage("A/S2")
	require.True(t, ok)
	assert.Equal(t, []string{"A/T3"}, stage.TaskIDs)

	assert.Equal(t, []string{"A/T2", "A/T3"}, p.Dependents("A/T1"))
	assert.Empty(t, p.Dependents("A/T3"))
	assert.Equal(t, -1, p.TaskIndex("nope"))
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusBlocked.Terminal())
	assert.False(t, Status("").Terminal())
}
