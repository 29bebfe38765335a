package plan

import (
	"fmt"
	"strings"
)

// Validate checks if the Status is a valid enum value. Empty means pending.
func (s Status) Validate() error {
	switch s {
	case "", StatusPending, StatusInProgress, StatusBlocked, StatusDone, StatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown task status: %q", s)
	}
}

// Validate checks the structural invariants of a plan: unique task ids, positions
// matching order, dependencies that resolve inside the plan and come earlier in
// the global order, and stages that only reference existing tasks.
func (p *ComposedPlan) Validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan must have at least one task")
	}

	index := make(map[string]int, len(p.Tasks))
	for i, task := range p.Tasks {
		if strings.TrimSpace(task.ID) == "" {
			return fmt.Errorf("task at index %d has empty ID", i)
		}
		if _, exists := index[task.ID]; exists {
			return fmt.Errorf("duplicate task ID %q at index %d", task.ID, i)
		}
		if task.Position != i {
			return fmt.Errorf("task %s has position %d but sits at index %d", task.ID, task.Position, i)
		}
		if err := task.Status.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", task.ID, err)
		}
		index[task.ID] = i
	}

	for i, task := range p.Tasks {
		for _, depID := range task.DependsOn {
			depIndex, ok := index[depID]
			if !ok {
				return fmt.Errorf("task at index %d (%s) has dependency %q that does not exist in plan", i, task.ID, depID)
			}
			if depIndex >= i {
				return fmt.Errorf("task %s is ordered before its dependency %s", task.ID, depID)
			}
		}
	}

	for _, stage := range p.Stages {
		for _, taskID := range stage.TaskIDs {
			if _, ok := index[taskID]; !ok {
				return fmt.Errorf("stage %s references unknown task %q", stage.ID, taskID)
			}
		}
	}

	return nil
}

// TaskIndex returns the position of the task with id, or -1.
func (p *ComposedPlan) TaskIndex(id string) int {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Task returns the task with id and whether it exists.
func (p *ComposedPlan) Task(id string) (*Task, bool) {
	if i := p.TaskIndex(id); i >= 0 {
		return &p.Tasks[i], true
	}
	return nil, false
}

// Stage returns the stage with id and whether it exists.
func (p *ComposedPlan) Stage(id string) (*Stage, bool) {
	for i := range p.Stages {
		if p.Stages[i].ID == id {
			return &p.Stages[i], true
		}
	}
	return nil, false
}

// Dependents returns the ids of tasks that list id in their DependsOn, in plan order.
func (p *ComposedPlan) Dependents(id string) []string {
	var out []string
	for _, task := range p.Tasks {
		for _, dep := range task.DependsOn {
			if dep == id {
				out = append(out, task.ID)
				break
			}
		}
	}
	return out
}
