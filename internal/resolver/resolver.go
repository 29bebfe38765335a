// Package resolver expands activated templates with their transitive dependencies,
// removes incompatible combinations and merges near-duplicate tasks.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dyluth/atelier/internal/scorer"
	"github.com/dyluth/atelier/pkg/catalog"
)

// Source loads templates and reports failures. A missing template must be
// reported with an error for which catalog.IsNotFound returns true.
type Source interface {
	Lookup(ctx context.Context, key string) (*catalog.TemplateDescriptor, error)
}

// Seed is an activated template and its detection score.
type Seed struct {
	ID    string
	Score float64
}

// Reason explains why a template left the resolution.
type Reason string

const (
	ReasonIncompatible      Reason = "incompatible"
	ReasonDependencyRemoved Reason = "dependency_removed"
	ReasonUnavailable       Reason = "unavailable"
)

// Removal records a template dropped during resolution.
type Removal struct {
	TemplateID string `json:"template_id"`
	Reason     Reason `json:"reason"`
	Cause      string `json:"cause,omitempty"` // The template that caused the removal
}

// Resolution is the dependency-closed, compatible template set.
type Resolution struct {
	Templates []*catalog.TemplateDescriptor `json:"-"`       // Dependencies before dependents
	IDs       []string                      `json:"ids"`     // Same order as Templates
	Scores    map[string]float64            `json:"scores"`  // Seed score, or best inherited score for dependencies
	Pulled    []string                      `json:"pulled"`  // Dependency-only templates, in discovery order
	Removed   []Removal                     `json:"removed"` // Every template dropped, with its reason
}

// Resolver is stateless and safe for concurrent use.
type Resolver struct {
	source Source
	scorer *scorer.Scorer
	logger *slog.Logger
}

// New creates a Resolver.
func New(source Source, sc *scorer.Scorer, logger *slog.Logger) (*Resolver, error) {
	if source == nil || sc == nil {
		return nil, fmt.Errorf("template source and scorer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, scorer: sc, logger: logger.With("component", "resolver")}, nil
}

// node is a template in the closure.
type node struct {
	t         *catalog.TemplateDescriptor
	discovery int
	seed      bool
	score     float64
}

// closure walks dependencies depth-first.
type closure struct {
	ctx     context.Context
	r       *Resolver
	nodes   map[string]*node
	order   []string // post-order: dependencies first
	onPath  map[string]bool
	path    []string
	next    int
	missing []Removal
}

// Resolve computes the transitive dependency closure of seeds, then drops the
// lower-scoring member of every incompatible pair and everything that depends on
// a dropped template.
//
// Seeds are expanded in the order given. A dependency reached again while still
// on the current expansion path is a cycle and fails with *CyclicDependencyError.
// A template the catalog does not know fails with *NotFoundError. Transient load
// failures of dependencies are recorded as removals and do not fail the call.
func (r *Resolver) Resolve(ctx context.Context, seeds []Seed) (*Resolution, error) {
	c := &closure{
		ctx:    ctx,
		r:      r,
		nodes:  make(map[string]*node),
		onPath: make(map[string]bool),
	}

	for _, s := range seeds {
		if err := c.visit(s.ID, ""); err != nil {
			return nil, err
		}
		if n, ok := c.nodes[s.ID]; ok {
			if !n.seed || s.Score > n.score {
				n.score = s.Score
			}
			n.seed = true
		}
	}

	// Dependency-only templates inherit the best score of the seeds that reach them.
	for _, s := range seeds {
		if n, ok := c.nodes[s.ID]; ok {
			c.inherit(s.ID, n.score, make(map[string]bool))
		}
	}

	removed := make(map[string]bool)
	var removals []Removal
	removals = append(removals, c.missing...)
	for _, m := range c.missing {
		removed[m.TemplateID] = true
	}

	// Incompatible pairs, visited in closure order.
	for _, id := range c.order {
		if removed[id] {
			continue
		}
		a := c.nodes[id]
		for _, other := range a.t.Incompatible {
			b, ok := c.nodes[other]
			if !ok || removed[other] || other == id {
				continue
			}
			loser, winner := a, b
			if a.score > b.score || (a.score == b.score && a.discovery < b.discovery) {
				loser, winner = b, a
			}
			removed[loser.t.ID] = true
			removals = append(removals, Removal{TemplateID: loser.t.ID, Reason: ReasonIncompatible, Cause: winner.t.ID})
			if loser == a {
				break
			}
		}
	}

	// Cascade to dependents until nothing changes.
	for changed := true; changed; {
		changed = false
		for _, id := range c.order {
			if removed[id] {
				continue
			}
			for _, dep := range c.nodes[id].t.Dependencies {
				if removed[dep] {
					removed[id] = true
					removals = append(removals, Removal{TemplateID: id, Reason: ReasonDependencyRemoved, Cause: dep})
					changed = true
					break
				}
			}
		}
	}

	// Dependency-only templates no surviving seed still needs.
	needed := make(map[string]bool)
	for _, id := range c.order {
		if n := c.nodes[id]; n.seed && !removed[id] {
			c.markNeeded(id, removed, needed)
		}
	}
	var orphans []string
	for _, id := range c.order {
		if !removed[id] && !needed[id] {
			orphans = append(orphans, id)
			removed[id] = true
		}
	}
	for _, id := range orphans {
		removals = append(removals, Removal{TemplateID: id, Reason: ReasonDependencyRemoved, Cause: c.removedDependent(id, removed)})
	}

	res := &Resolution{
		Templates: []*catalog.TemplateDescriptor{},
		IDs:       []string{},
		Scores:    make(map[string]float64),
		Pulled:    []string{},
		Removed:   removals,
	}
	if res.Removed == nil {
		res.Removed = []Removal{}
	}

	for _, id := range c.order {
		if removed[id] {
			continue
		}
		n := c.nodes[id]
		res.Templates = append(res.Templates, n.t)
		res.IDs = append(res.IDs, id)
		res.Scores[id] = n.score
	}
	for _, id := range c.discoveryOrder() {
		if !removed[id] && !c.nodes[id].seed {
			res.Pulled = append(res.Pulled, id)
		}
	}

	for _, rm := range removals {
		r.logger.Info("template removed during resolution",
			"template_id", rm.TemplateID,
			"reason", string(rm.Reason),
			"cause", rm.Cause)
	}

	return res, nil
}

func (c *closure) visit(id, requiredBy string) error {
	if c.onPath[id] {
		return &CyclicDependencyError{Kind: "template", Chain: c.cycleFrom(id)}
	}
	if _, done := c.nodes[id]; done {
		return nil
	}
	for _, m := range c.missing {
		if m.TemplateID == id {
			return nil
		}
	}

	t, err := c.r.source.Lookup(c.ctx, id)
	if err != nil {
		if catalog.IsNotFound(err) {
			return &NotFoundError{TemplateID: id, RequiredBy: requiredBy, Err: err}
		}
		if requiredBy == "" || c.ctx.Err() != nil {
			return fmt.Errorf("failed to load template %s: %w", id, err)
		}
		c.missing = append(c.missing, Removal{TemplateID: id, Reason: ReasonUnavailable, Cause: requiredBy})
		return nil
	}

	c.onPath[id] = true
	c.path = append(c.path, id)
	discovery := c.next
	c.next++

	for _, dep := range t.Dependencies {
		if err := c.visit(dep, id); err != nil {
			return err
		}
	}

	c.path = c.path[:len(c.path)-1]
	delete(c.onPath, id)

	c.nodes[id] = &node{t: t, discovery: discovery}
	c.order = append(c.order, id)
	return nil
}

func (c *closure) cycleFrom(id string) []string {
	for i, p := range c.path {
		if p == id {
			chain := append([]string(nil), c.path[i:]...)
			return append(chain, id)
		}
	}
	return []string{id, id}
}

func (c *closure) inherit(id string, score float64, seen map[string]bool) {
	n, ok := c.nodes[id]
	if !ok || seen[id] {
		return
	}
	seen[id] = true
	if !n.seed && score > n.score {
		n.score = score
	}
	for _, dep := range n.t.Dependencies {
		c.inherit(dep, score, seen)
	}
}

func (c *closure) markNeeded(id string, removed, needed map[string]bool) {
	if needed[id] || removed[id] {
		return
	}
	if _, ok := c.nodes[id]; !ok {
		return
	}
	needed[id] = true
	for _, dep := range c.nodes[id].t.Dependencies {
		c.markNeeded(dep, removed, needed)
	}
}

// removedDependent returns the first removed template in closure order that
// depends on id.
func (c *closure) removedDependent(id string, removed map[string]bool) string {
	for _, other := range c.order {
		if other == id || !removed[other] {
			continue
		}
		for _, dep := range c.nodes[other].t.Dependencies {
			if dep == id {
				return other
			}
		}
	}
	return ""
}

func (c *closure) discoveryOrder() []string {
	ids := make([]string, len(c.order))
	for _, id := range c.order {
		ids[c.nodes[id].discovery] = id
	}
	return ids
}
