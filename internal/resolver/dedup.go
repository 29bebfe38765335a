package resolver

import (
	"github.com/dyluth/atelier/pkg/plan"
)

// DedupResult holds the tasks kept after merging near-duplicates.
type DedupResult struct {
	Tasks      []plan.Task      // Kept tasks in input order, dependencies remapped
	Alternates []plan.Alternate // Dropped duplicates, kept for audit
	Remap      map[string]string
}

// Dedup merges tasks of different templates whose names are near-duplicates.
//
// Tasks are scanned in order; a task whose name is similar enough to an already
// kept task of another template becomes an alternate of the most similar one
// (the earliest kept task wins ties). The kept task inherits the alternate's
// dependencies, and dependencies naming an alternate are rewritten to the task it
// duplicates. Tasks of the same template are never merged, nor are tasks that
// reach each other through dependencies, since merging them would form a cycle.
func (r *Resolver) Dedup(tasks []plan.Task) DedupResult {
	res := DedupResult{
		Tasks:      make([]plan.Task, 0, len(tasks)),
		Alternates: []plan.Alternate{},
		Remap:      make(map[string]string),
	}
	g := newMergeGraph(tasks, res.Remap)

	for _, t := range tasks {
		best, bestScore := -1, 0.0
		for i, kept := range res.Tasks {
			if kept.TemplateID == t.TemplateID {
				continue
			}
			score, dup := r.scorer.IsDuplicate(t.Name, kept.Name)
			if !dup || score <= bestScore {
				continue
			}
			if g.reaches(t.ID, kept.ID) || g.reaches(kept.ID, t.ID) {
				continue
			}
			best, bestScore = i, score
		}

		if best < 0 {
			res.Tasks = append(res.Tasks, t)
			continue
		}

		kept := &res.Tasks[best]
		merged := make([]string, 0, len(kept.DependsOn)+len(t.DependsOn))
		merged = append(merged, kept.DependsOn...)
		kept.DependsOn = append(merged, t.DependsOn...)

		res.Remap[t.ID] = kept.ID
		g.merge(t.ID, kept.ID)
		res.Alternates = append(res.Alternates, plan.Alternate{Task: t, DuplicateOf: kept.ID, Score: bestScore})
	}

	for i := range res.Tasks {
		res.Tasks[i].DependsOn = remapDeps(res.Tasks[i].ID, res.Tasks[i].DependsOn, res.Remap)
	}
	return res
}

// mergeGraph is the task dependency graph with merged tasks collapsed onto the
// task they were merged into.
type mergeGraph struct {
	deps    map[string][]string // Original dependencies by task id
	members map[string][]string // Canonical id -> original ids collapsed onto it
	remap   map[string]string
}

func newMergeGraph(tasks []plan.Task, remap map[string]string) *mergeGraph {
	g := &mergeGraph{
		deps:    make(map[string][]string, len(tasks)),
		members: make(map[string][]string, len(tasks)),
		remap:   remap,
	}
	for _, t := range tasks {
		g.deps[t.ID] = t.DependsOn
		g.members[t.ID] = []string{t.ID}
	}
	return g
}

func (g *mergeGraph) canon(id string) string {
	if to, ok := g.remap[id]; ok {
		return to
	}
	return id
}

func (g *mergeGraph) merge(from, into string) {
	g.members[into] = append(g.members[into], g.members[from]...)
	delete(g.members, from)
}

// reaches reports whether from depends on to, directly or transitively.
func (g *mergeGraph) reaches(from, to string) bool {
	from, to = g.canon(from), g.canon(to)
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, m := range g.members[cur] {
			for _, d := range g.deps[m] {
				d = g.canon(d)
				if d == to {
					return true
				}
				if !seen[d] {
					seen[d] = true
					stack = append(stack, d)
				}
			}
		}
	}
	return false
}

// remapDeps rewrites dependencies through remap, dropping self references and
// repeats that merging can introduce.
func remapDeps(self string, deps []string, remap map[string]string) []string {
	out := make([]string, 0, len(deps))
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		if to, ok := remap[d]; ok {
			d = to
		}
		if d == self || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
