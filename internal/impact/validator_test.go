package impact

import (
	"context"
	"testing"

	"github.com/dyluth/atelier/internal/scorer"
	"github.com/dyluth/atelier/pkg/plan"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// samplePlan is T1 -> T2 -> T3 -> T4 across two stages.
func samplePlan() *plan.ComposedPlan {
	p := &plan.ComposedPlan{
		Tasks: []plan.Task{
			{ID: "CASA/T1", Name: "Briefing", StageID: "CASA/S1", Role: "architect", Duration: 10},
			{ID: "CASA/T2", Name: "Site survey", StageID: "CASA/S1", Role: "drafter", Duration: 5, DependsOn: []string{"CASA/T1"}},
			{ID: "CASA/T3", Name: "Floor plans", StageID: "CASA/S2", Role: "architect", Duration: 20, DependsOn: []string{"CASA/T2"}},
			{ID: "CASA/T4", Name: "Handover", StageID: "CASA/S2", Role: "architect", Duration: 5, DependsOn: []string{"CASA/T3"}},
		},
		Stages: []plan.Stage{
			{ID: "CASA/S1", Name: "Briefing", TaskIDs: []string{"CASA/T1", "CASA/T2"}, Position: 0},
			{ID: "CASA/S2", Name: "Design", TaskIDs: []string{"CASA/T3", "CASA/T4"}, Position: 1},
		},
	}
	for i := range p.Tasks {
		p.Tasks[i].Position = i
		p.Tasks[i].Status = plan.StatusPending
	}
	return p
}

func newValidator() *Validator {
	return New(scorer.New(scorer.Config{}), Config{
		SlipThreshold:  10,
		MaxActiveTasks: 5,
		Rates:          map[string]float64{"architect": 100},
		DefaultRate:    40,
	}, nil)
}

func ptr[T any](v T) *T { return &v }

func TestValidate_DeleteTaskWithDependents(t *testing.T) {
	r := newValidator().Validate(context.Background(),
		MutationRequest{Op: OpDelete, Entity: EntityTask, TargetID: "CASA/T2"}, samplePlan())

	assert.False(t, r.CanProceed)
	assert.Equal(t, OutcomeRejected, r.Outcome)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, SeverityError, r.Findings[0].Severity)
	assert.Equal(t, CategoryDependency, r.Findings[0].Category)
	assert.Equal(t, []string{"CASA/T2", "CASA/T3"}, r.AffectedTaskIDs)
}

func TestValidate_DeleteLeafTask(t *testing.T) {
	r := newValidator().Validate(context.Background(),
		MutationRequest{Op: OpDelete, Entity: EntityTask, TargetID: "CASA/T4"}, samplePlan())

	assert.True(t, r.CanProceed)
	assert.False(t, r.RequiresConfirmation)
	assert.Equal(t, OutcomeAccepted, r.Outcome)
	assert.Empty(t, r.Findings)
}

func TestValidate_DeleteStage(t *testing.T) {
	v := newValidator()

	r := v.Validate(context.Background(), MutationRequest{Op: OpDelete, Entity: EntityStage, TargetID: "CASA/S1"}, samplePlan())
	assert.Equal(t, OutcomeRejected, r.Outcome, "T3 outside the stage depends on T2")
	assert.Contains(t, r.AffectedTaskIDs, "CASA/T3")

	r = v.Validate(context.Background(), MutationRequest{Op: OpDelete, Entity: EntityStage, TargetID: "CASA/S2"}, samplePlan())
	assert.Equal(t, OutcomeAccepted, r.Outcome, "dependencies inside the stage do not block")
}

func TestValidate_UnknownTarget(t *testing.T) {
	r := newValidator().Validate(context.Background(),
		MutationRequest{Op: OpEdit, Entity: EntityTask, TargetID: "CASA/T99", Payload: Payload{Name: "x"}}, samplePlan())
	assert.Equal(t, OutcomeRejected, r.Outcome)
}

func TestValidate_CreateWithUnknownDependency(t *testing.T) {
	r := newValidator().Validate(context.Background(), MutationRequest{
		Op:      OpCreate,
		Entity:  EntityTask,
		Payload: Payload{Name: "Structural review", Role: "engineer", DependsOn: []string{"CASA/T1", "GHOST/T1"}},
	}, samplePlan())

	assert.Equal(t, OutcomeRejected, r.Outcome)
	assert.Equal(t, []string{"GHOST/T1"}, r.AffectedTaskIDs)
	assert.NotEmpty(t, r.Request.Payload.ID, "created tasks get an id")
}

func TestValidate_EditIntroducingCycle(t *testing.T) {
	r := newValidator().Validate(context.Background(), MutationRequest{
		Op: OpEdit, Entity: EntityTask, TargetID: "CASA/T1",
		Payload: Payload{DependsOn: []string{"CASA/T4"}},
	}, samplePlan())

	assert.Equal(t, OutcomeRejected, r.Outcome)
	assert.Contains(t, r.Findings[0].Message, "cycle")
}

func TestValidate_MoveTask(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		position int
		want     Outcome
	}{
		{"before its dependency", "CASA/T3", 0, OutcomeRejected},
		{"onto its dependency", "CASA/T4", 2, OutcomeRejected},
		{"after its dependent", "CASA/T1", 3, OutcomeRejected},
		{"same slot", "CASA/T2", 1, OutcomeAccepted},
		{"out of range", "CASA/T2", 9, OutcomeRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newValidator().Validate(context.Background(), MutationRequest{
				Op: OpMove, Entity: EntityTask, TargetID: tt.target,
				Payload: Payload{Position: ptr(tt.position)},
			}, samplePlan())
			assert.Equal(t, tt.want, r.Outcome)
		})
	}
}

func TestValidate_MoveIndependentTask(t *testing.T) {
	p := samplePlan()
	p.Tasks = append(p.Tasks, plan.Task{ID: "EXTRA/T1", Name: "Photo shoot", StageID: "CASA/S2", Role: "architect", Position: 4})
	p.Stages[1].TaskIDs = append(p.Stages[1].TaskIDs, "EXTRA/T1")

	r := newValidator().Validate(context.Background(), MutationRequest{
		Op: OpMove, Entity: EntityTask, TargetID: "EXTRA/T1", Payload: Payload{Position: ptr(0)},
	}, p)
	assert.Equal(t, OutcomeAccepted, r.Outcome)
}

func TestValidate_MoveStage(t *testing.T) {
	v := newValidator()

	r := v.Validate(context.Background(), MutationRequest{
		Op: OpMove, Entity: EntityStage, TargetID: "CASA/S2", Payload: Payload{Position: ptr(0)},
	}, samplePlan())
	assert.Equal(t, OutcomeRejected, r.Outcome)

	r = v.Validate(context.Background(), MutationRequest{
		Op: OpMove, Entity: EntityStage, TargetID: "CASA/S2", Payload: Payload{Position: ptr(1)},
	}, samplePlan())
	assert.Equal(t, OutcomeAccepted, r.Outcome)
}

func TestValidate_ScheduleSlip(t *testing.T) {
	v := newValidator()

	r := v.Validate(context.Background(), MutationRequest{
		Op: OpCreate, Entity: EntityTask,
		Payload: Payload{ID: "CASA/T5", Name: "3D renders", Role: "architect", Assignee: "ana", Duration: ptr(30.0)},
	}, samplePlan())

	assert.True(t, r.CanProceed)
	assert.True(t, r.RequiresConfirmation)
	assert.Equal(t, OutcomeWarning, r.Outcome)
	assert.True(t, r.HasCategory(CategorySchedule))
	assert.Equal(t, 30.0, r.ProjectedFinishDelta)
	assert.Equal(t, 3000.0, r.ProjectedCostDelta)
	assert.Equal(t, []string{"CASA/T5"}, r.AffectedTaskIDs)

	// Editing adds only the difference.
	r = v.Validate(context.Background(), MutationRequest{
		Op: OpEdit, Entity: EntityTask, TargetID: "CASA/T3", Payload: Payload{Duration: ptr(25.0)},
	}, samplePlan())
	assert.False(t, r.HasCategory(CategorySchedule))
	assert.Equal(t, OutcomeAccepted, r.Outcome)

	r = v.Validate(context.Background(), MutationRequest{
		Op: OpEdit, Entity: EntityTask, TargetID: "CASA/T2", Payload: Payload{Duration: ptr(20.0)},
	}, samplePlan())
	assert.Equal(t, 15.0, r.ProjectedFinishDelta)
	assert.Equal(t, 15*40.0, r.ProjectedCostDelta, "drafter has no rate, default applies")
}

func TestValidate_ResourceLoad(t *testing.T) {
	v := New(scorer.New(scorer.Config{}), Config{MaxActiveTasks: 2}, nil)
	create := MutationRequest{Op: OpCreate, Entity: EntityTask, Payload: Payload{Name: "Facade study", Role: "architect"}}

	// Three unassigned architect tasks are active.
	r := v.Validate(context.Background(), create, samplePlan())
	assert.True(t, r.HasCategory(CategoryResource))
	assert.Equal(t, OutcomeWarning, r.Outcome)

	p := samplePlan()
	p.Tasks[0].Status = plan.StatusDone
	r = v.Validate(context.Background(), create, p)
	assert.False(t, r.HasCategory(CategoryResource), "terminal tasks do not count")

	// Editing an architect task excludes the task itself.
	r = v.Validate(context.Background(), MutationRequest{
		Op: OpEdit, Entity: EntityTask, TargetID: "CASA/T3", Payload: Payload{Name: "Floor plans v2"},
	}, samplePlan())
	assert.False(t, r.HasCategory(CategoryResource))

	// Assignees are counted per person.
	p = samplePlan()
	for i := range p.Tasks {
		p.Tasks[i].Assignee = "bruno"
	}
	r = v.Validate(context.Background(), MutationRequest{
		Op: OpCreate, Entity: EntityTask, Payload: Payload{Name: "Facade study", Role: "architect", Assignee: "bruno"},
	}, p)
	assert.True(t, r.HasCategory(CategoryResource))
}

func TestValidate_DuplicateIsInfoOnly(t *testing.T) {
	r := newValidator().Validate(context.Background(), MutationRequest{
		Op: OpCreate, Entity: EntityTask, Payload: Payload{Name: "Site Survey", Role: "drafter"},
	}, samplePlan())

	require.True(t, r.HasCategory(CategoryDuplicate))
	assert.True(t, r.CanProceed)
	assert.False(t, r.RequiresConfirmation)
	assert.Equal(t, OutcomeAccepted, r.Outcome)
	assert.Contains(t, r.AffectedTaskIDs, "CASA/T2")
}

func TestValidate_NilPlanIsConservative(t *testing.T) {
	r := newValidator().Validate(context.Background(),
		MutationRequest{Op: OpDelete, Entity: EntityTask, TargetID: "CASA/T1"}, nil)

	assert.True(t, r.CanProceed)
	assert.True(t, r.RequiresConfirmation)
	assert.True(t, r.HasCategory(CategoryInternal))
}

func TestValidate_InvalidRequest(t *testing.T) {
	tests := []MutationRequest{
		{Op: "explode", Entity: EntityTask, TargetID: "CASA/T1"},
		{Op: OpDelete, Entity: "milestone", TargetID: "CASA/T1"},
		{Op: OpDelete, Entity: EntityTask},
		{Op: OpMove, Entity: EntityTask, TargetID: "CASA/T1"},
		{Op: OpCreate, Entity: EntityTask, Payload: Payload{Name: "x", Duration: ptr(-1.0)}},
	}

	for _, req := range tests {
		r := newValidator().Validate(context.Background(), req, samplePlan())
		assert.Equal(t, OutcomeWarning, r.Outcome, "%+v", req)
		assert.True(t, r.HasCategory(CategoryInternal))
	}
}

func TestValidate_RecoversFromPanics(t *testing.T) {
	v := newValidator()
	v.scorer = nil // the duplicate check dereferences it

	r := v.Validate(context.Background(), MutationRequest{
		Op: OpCreate, Entity: EntityTask, Payload: Payload{Name: "Anything", Role: "architect"},
	}, samplePlan())

	assert.True(t, r.HasCategory(CategoryInternal))
	assert.True(t, r.RequiresConfirmation)
}

func TestValidate_ReportIdentity(t *testing.T) {
	v := newValidator()
	req := MutationRequest{Op: OpDelete, Entity: EntityTask, TargetID: "CASA/T4"}

	a := v.Validate(context.Background(), req, samplePlan())
	b := v.Validate(context.Background(), req, samplePlan())

	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.EvaluatedAt.IsZero())
	assert.Equal(t, req, a.Request)
}
