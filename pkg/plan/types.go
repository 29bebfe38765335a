// Package plan defines the composed plan handed to callers after composition.
// A ComposedPlan is a plain value: the engine keeps no reference to it once
// returned, and callers own persistence and mutation.
package plan

import (
	"time"
)

// ComposedPlan is the ordered set of stages and tasks produced by merging templates.
type ComposedPlan struct {
	Stages              []Stage     `json:"stages"`
	Tasks               []Task      `json:"tasks"` // Global topological order; Task.Position is the index
	TotalDuration       float64     `json:"total_duration"`
	TotalCost           float64     `json:"total_cost"`
	GeneratedAt         time.Time   `json:"generated_at"`
	SourceTemplateIDs   []string    `json:"source_template_ids"`
	Alternates          []Alternate `json:"alternates,omitempty"`           // Near-duplicate tasks dropped during composition
	DroppedDependencies []string    `json:"dropped_dependencies,omitempty"` // "task -> missing" references outside the plan
	Fallback            string      `json:"fallback,omitempty"`             // Fallback tier that produced the plan, empty when none
}

// Stage groups tasks of one template stage. Stages are ordered globally.
type Stage struct {
	ID         string   `json:"id"` // TEMPLATE/STAGE
	Name       string   `json:"name"`
	TemplateID string   `json:"template_id"`
	TaskIDs    []string `json:"task_ids"`
	Position   int      `json:"position"`
}

// Task is a unit of work in a composed plan.
type Task struct {
	ID               string   `json:"id"` // TEMPLATE/TASK
	Name             string   `json:"name"`
	StageID          string   `json:"stage_id"`
	TemplateID       string   `json:"template_id"`
	Role             string   `json:"role"`
	Assignee         string   `json:"assignee,omitempty"`
	Duration         float64  `json:"duration"`
	Cost             float64  `json:"cost"`
	ApprovalRequired bool     `json:"approval_required"`
	DependsOn        []string `json:"depends_on"`
	Position         int      `json:"position"`
	Status           Status   `json:"status"`
}

// Alternate records a task that was merged into a near-duplicate during composition.
type Alternate struct {
	Task        Task    `json:"task"`
	DuplicateOf string  `json:"duplicate_of"`
	Score       float64 `json:"score"`
}

// Status is the lifecycle state of a plan task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a task in this status no longer consumes capacity.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusCancelled:
		return true
	case StatusPending, StatusInProgress, StatusBlocked, "":
		return false
	default:
		return false
	}
}
