package impact

import (
	"fmt"
	"strings"

	"github.com/dyluth/atelier/pkg/plan"
)

// checkDependencies rejects mutations that would leave a dependency dangling or
// ordered after its dependent.
func (v *Validator) checkDependencies(req MutationRequest, p *plan.ComposedPlan) []Finding {
	if req.Entity == EntityStage {
		return v.checkStageDependencies(req, p)
	}

	var findings []Finding
	reject := func(msg string, ids ...string) {
		findings = append(findings, Finding{Severity: SeverityError, Category: CategoryDependency, Message: msg, AffectedIDs: ids})
	}

	if req.Op == OpCreate {
		if _, exists := p.Task(req.Payload.ID); exists {
			reject(fmt.Sprintf("task %s already exists", req.Payload.ID), req.Payload.ID)
		}
		if req.Payload.StageID != "" {
			if _, ok := p.Stage(req.Payload.StageID); !ok {
				reject(fmt.Sprintf("stage %s does not exist", req.Payload.StageID))
			}
		}
		if unknown := unknownTasks(p, req.Payload.DependsOn); len(unknown) > 0 {
			reject("unknown dependencies: "+strings.Join(unknown, ", "), unknown...)
		}
		return findings
	}

	target := p.TaskIndex(req.TargetID)
	if target < 0 {
		reject(fmt.Sprintf("task %s does not exist", req.TargetID))
		return findings
	}

	switch req.Op {
	case OpDelete:
		if dependents := p.Dependents(req.TargetID); len(dependents) > 0 {
			reject(fmt.Sprintf("task %s is required by %s", req.TargetID, strings.Join(dependents, ", ")),
				append([]string{req.TargetID}, dependents...)...)
		}

	case OpEdit:
		if unknown := unknownTasks(p, req.Payload.DependsOn); len(unknown) > 0 {
			reject("unknown dependencies: "+strings.Join(unknown, ", "), unknown...)
		}
		downstream := transitiveDependents(p, req.TargetID)
		for _, dep := range req.Payload.DependsOn {
			if dep == req.TargetID || downstream[dep] {
				reject(fmt.Sprintf("depending on %s would create a cycle", dep), req.TargetID, dep)
			}
		}

	case OpMove:
		pos := *req.Payload.Position
		if pos < 0 || pos >= len(p.Tasks) {
			reject(fmt.Sprintf("position %d is outside the plan (0-%d)", pos, len(p.Tasks)-1), req.TargetID)
			break
		}
		// Indices once the target is lifted out of the list.
		lifted := func(i int) int {
			if i > target {
				return i - 1
			}
			return i
		}
		for _, dep := range p.Tasks[target].DependsOn {
			if i := p.TaskIndex(dep); i >= 0 && lifted(i) >= pos {
				reject(fmt.Sprintf("task %s would move before its dependency %s", req.TargetID, dep), req.TargetID, dep)
			}
		}
		for _, dependent := range p.Dependents(req.TargetID) {
			if i := p.TaskIndex(dependent); lifted(i) < pos {
				reject(fmt.Sprintf("task %s would move after its dependent %s", req.TargetID, dependent), req.TargetID, dependent)
			}
		}
	}

	return findings
}

func (v *Validator) checkStageDependencies(req MutationRequest, p *plan.ComposedPlan) []Finding {
	var findings []Finding
	reject := func(msg string, ids ...string) {
		findings = append(findings, Finding{Severity: SeverityError, Category: CategoryDependency, Message: msg, AffectedIDs: ids})
	}

	if req.Op == OpCreate {
		if _, exists := p.Stage(req.Payload.ID); exists {
			reject(fmt.Sprintf("stage %s already exists", req.Payload.ID))
		}
		return findings
	}

	target := -1
	for i := range p.Stages {
		if p.Stages[i].ID == req.TargetID {
			target = i
			break
		}
	}
	if target < 0 {
		reject(fmt.Sprintf("stage %s does not exist", req.TargetID))
		return findings
	}
	stage := p.Stages[target]
	members := make(map[string]bool, len(stage.TaskIDs))
	for _, id := range stage.TaskIDs {
		members[id] = true
	}

	switch req.Op {
	case OpDelete:
		for _, id := range stage.TaskIDs {
			var outside []string
			for _, dependent := range p.Dependents(id) {
				if !members[dependent] {
					outside = append(outside, dependent)
				}
			}
			if len(outside) > 0 {
				reject(fmt.Sprintf("task %s of stage %s is required by %s", id, stage.ID, strings.Join(outside, ", ")),
					append([]string{id}, outside...)...)
			}
		}

	case OpMove:
		pos := *req.Payload.Position
		if pos < 0 || pos >= len(p.Stages) {
			reject(fmt.Sprintf("position %d is outside the stage list (0-%d)", pos, len(p.Stages)-1))
			break
		}
		stageIndex := make(map[string]int)
		for i, s := range p.Stages {
			for _, id := range s.TaskIDs {
				stageIndex[id] = i
			}
		}
		lifted := func(i int) int {
			if i > target {
				return i - 1
			}
			return i
		}
		for _, id := range stage.TaskIDs {
			task, ok := p.Task(id)
			if !ok {
				continue
			}
			for _, dep := range task.DependsOn {
				si, ok := stageIndex[dep]
				if ok && si != target && lifted(si) >= pos {
					reject(fmt.Sprintf("stage %s would move before stage %s, which %s depends on", stage.ID, p.Stages[si].ID, id), id, dep)
				}
			}
			for _, dependent := range p.Dependents(id) {
				si, ok := stageIndex[dependent]
				if ok && si != target && lifted(si) < pos {
					reject(fmt.Sprintf("stage %s would move after stage %s, which depends on %s", stage.ID, p.Stages[si].ID, id), id, dependent)
				}
			}
		}
	}

	return findings
}

// checkSchedule warns when a created or edited task adds more duration than the
// slip threshold.
func (v *Validator) checkSchedule(req MutationRequest, p *plan.ComposedPlan) []Finding {
	if req.Entity != EntityTask || req.Payload.Duration == nil {
		return nil
	}

	added := *req.Payload.Duration
	role := req.Payload.Role
	id := req.Payload.ID
	switch req.Op {
	case OpCreate:
	case OpEdit:
		existing, ok := p.Task(req.TargetID)
		if !ok {
			return nil
		}
		added -= existing.Duration
		if role == "" {
			role = existing.Role
		}
		id = existing.ID
	default:
		return nil
	}

	if added <= v.cfg.SlipThreshold {
		return nil
	}

	return []Finding{{
		Severity:     SeverityWarning,
		Category:     CategorySchedule,
		Message:      fmt.Sprintf("adds %.1f time units to the plan (threshold %.1f)", added, v.cfg.SlipThreshold),
		FinishImpact: added,
		CostImpact:   added * v.rate(role),
		AffectedIDs:  nonEmpty(id),
	}}
}

// checkResourceLoad warns when the task's owner already holds too many active tasks.
// The owner is the assignee, or the role when nobody is assigned.
func (v *Validator) checkResourceLoad(req MutationRequest, p *plan.ComposedPlan) []Finding {
	if req.Entity != EntityTask || (req.Op != OpCreate && req.Op != OpEdit) {
		return nil
	}

	assignee, role, id := req.Payload.Assignee, req.Payload.Role, req.Payload.ID
	if req.Op == OpEdit {
		existing, ok := p.Task(req.TargetID)
		if !ok {
			return nil
		}
		if assignee == "" {
			assignee = existing.Assignee
		}
		if role == "" {
			role = existing.Role
		}
		id = existing.ID
	}

	owner := assignee
	owns := func(t *plan.Task) bool { return t.Assignee == assignee }
	if assignee == "" {
		owner = role
		owns = func(t *plan.Task) bool { return t.Assignee == "" && t.Role == role }
	}
	if owner == "" {
		return nil
	}

	active := 0
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.ID == id || t.Status.Terminal() {
			continue
		}
		if owns(t) {
			active++
		}
	}

	if active <= v.cfg.MaxActiveTasks {
		return nil
	}

	return []Finding{{
		Severity:    SeverityWarning,
		Category:    CategoryResource,
		Message:     fmt.Sprintf("%s already has %d active tasks (limit %d)", owner, active, v.cfg.MaxActiveTasks),
		AffectedIDs: nonEmpty(id),
	}}
}

// checkDuplicates notes when a new or renamed task looks like an existing one.
func (v *Validator) checkDuplicates(req MutationRequest, p *plan.ComposedPlan) []Finding {
	if req.Entity != EntityTask || req.Payload.Name == "" || (req.Op != OpCreate && req.Op != OpEdit) {
		return nil
	}

	var best *plan.Task
	bestScore := 0.0
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.ID == req.TargetID {
			continue
		}
		if score, dup := v.scorer.IsDuplicate(req.Payload.Name, t.Name); dup && score > bestScore {
			best, bestScore = t, score
		}
	}
	if best == nil {
		return nil
	}

	return []Finding{{
		Severity:    SeverityInfo,
		Category:    CategoryDuplicate,
		Message:     fmt.Sprintf("%q looks like existing task %s %q (similarity %.2f)", req.Payload.Name, best.ID, best.Name, bestScore),
		AffectedIDs: []string{best.ID},
	}}
}

func unknownTasks(p *plan.ComposedPlan, ids []string) []string {
	var unknown []string
	for _, id := range ids {
		if p.TaskIndex(id) < 0 {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// transitiveDependents returns every task that depends on id directly or indirectly.
func transitiveDependents(p *plan.ComposedPlan, id string) map[string]bool {
	out := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range p.Dependents(cur) {
			if !out[d] {
				out[d] = true
				queue = append(queue, d)
			}
		}
	}
	return out
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
