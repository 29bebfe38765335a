// Package impact evaluates proposed edits to a composed plan and reports whether
// they may proceed, need confirmation or must be rejected.
package impact

import (
	"fmt"
	"time"
)

// Op is the kind of mutation.
type Op string

const (
	OpCreate Op = "create"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
	OpMove   Op = "move"
)

// Validate checks if the Op is a valid enum value.
func (o Op) Validate() error {
	switch o {
	case OpCreate, OpEdit, OpDelete, OpMove:
		return nil
	default:
		return fmt.Errorf("unknown mutation op: %q", o)
	}
}

// Entity is what the mutation targets.
type Entity string

const (
	EntityTask  Entity = "task"
	EntityStage Entity = "stage"
)

// Validate checks if the Entity is a valid enum value.
func (e Entity) Validate() error {
	switch e {
	case EntityTask, EntityStage:
		return nil
	default:
		return fmt.Errorf("unknown mutation entity: %q", e)
	}
}

// Payload carries the new values of a create, edit or move. Nil pointer fields
// are left unchanged by an edit.
type Payload struct {
	ID        string   `json:"id,omitempty" yaml:"id,omitempty"` // Id for a created entity; generated when empty
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	StageID   string   `json:"stage_id,omitempty" yaml:"stage_id,omitempty"`
	Role      string   `json:"role,omitempty" yaml:"role,omitempty"`
	Assignee  string   `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Duration  *float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Position  *int     `json:"position,omitempty" yaml:"position,omitempty"` // Target index for move
}

// MutationRequest is a proposed structural edit of a plan.
type MutationRequest struct {
	Op       Op      `json:"op" yaml:"op"`
	Entity   Entity  `json:"entity" yaml:"entity"`
	TargetID string  `json:"target_id,omitempty" yaml:"target_id,omitempty"` // Required for edit, delete and move
	Payload  Payload `json:"payload" yaml:"payload"`
}

// Validate checks the request shape. It does not look at any plan.
func (r *MutationRequest) Validate() error {
	if err := r.Op.Validate(); err != nil {
		return err
	}
	if err := r.Entity.Validate(); err != nil {
		return err
	}
	if r.Op != OpCreate && r.TargetID == "" {
		return fmt.Errorf("%s %s requires a target id", r.Op, r.Entity)
	}
	if r.Op == OpMove && r.Payload.Position == nil {
		return fmt.Errorf("move requires a payload position")
	}
	if r.Payload.Duration != nil && *r.Payload.Duration < 0 {
		return fmt.Errorf("duration must be >= 0, got %v", *r.Payload.Duration)
	}
	if r.Op == OpCreate && r.Entity == EntityTask && r.Payload.Name == "" {
		return fmt.Errorf("created task requires a name")
	}
	return nil
}

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Category names the check that produced a finding.
type Category string

const (
	CategoryDependency Category = "dependency"
	CategorySchedule   Category = "schedule"
	CategoryResource   Category = "resource"
	CategoryDuplicate  Category = "duplicate"
	CategoryInternal   Category = "internal"
)

// Finding is one observation about a mutation.
type Finding struct {
	Severity     Severity `json:"severity"`
	Category     Category `json:"category"`
	Message      string   `json:"message"`
	FinishImpact float64  `json:"finish_impact,omitempty"` // Time units added to the plan
	CostImpact   float64  `json:"cost_impact,omitempty"`
	AffectedIDs  []string `json:"affected_ids,omitempty"`
}

// Outcome is the aggregated verdict of a report.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeWarning  Outcome = "warning"
	OutcomeRejected Outcome = "rejected"
)

// Report is the result of validating one mutation.
type Report struct {
	ID                   string          `json:"id"`
	Request              MutationRequest `json:"request"`
	Findings             []Finding       `json:"findings"`
	CanProceed           bool            `json:"can_proceed"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	Outcome              Outcome         `json:"outcome"`
	ProjectedFinishDelta float64         `json:"projected_finish_delta"`
	ProjectedCostDelta   float64         `json:"projected_cost_delta"`
	AffectedTaskIDs      []string        `json:"affected_task_ids"`
	EvaluatedAt          time.Time       `json:"evaluated_at"`
}

// HasCategory reports whether any finding belongs to c.
func (r *Report) HasCategory(c Category) bool {
	for _, f := range r.Findings {
		if f.Category == c {
			return true
		}
	}
	return false
}
