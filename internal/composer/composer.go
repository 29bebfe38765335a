// Package composer merges resolved templates into one ordered, costed plan.
package composer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dyluth/atelier/internal/resolver"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/dyluth/atelier/pkg/plan"
)

// Deduper merges near-duplicate tasks across templates.
type Deduper interface {
	Dedup(tasks []plan.Task) resolver.DedupResult
}

// Registry lists template ids registered under a typology.
type Registry interface {
	TemplateIDs(ctx context.Context, typology string) ([]string, error)
}

// TemplateSource loads templates without failing and exposes the descriptor it
// serves when nothing else is available.
type TemplateSource interface {
	Get(ctx context.Context, key string) *catalog.TemplateDescriptor
	Fallback() *catalog.TemplateDescriptor
}

// FallbackTier names which step of the fallback chain produced a plan.
type FallbackTier string

const (
	TierTypologyDefault FallbackTier = "typology_default"
	TierTypologyFirst   FallbackTier = "typology_first"
	TierGlobalDefault   FallbackTier = "global_default"
	TierLoaderFallback  FallbackTier = "loader_fallback"
)

// Config holds composition parameters.
type Config struct {
	Rates              map[string]float64      // Cost per time unit by role
	DefaultRate        float64                 // Used for roles missing from Rates
	DefaultMultipliers catalog.MultiplierTable // Used when a template declares no multiplier for a level
	TypologyDefaults   map[string]string       // Typology -> template id used when nothing is activated
	GlobalDefault      string                  // Template id used when the typology has no default
}

// Composer is stateless and safe for concurrent use.
type Composer struct {
	dedup    Deduper
	source   TemplateSource
	registry Registry
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Composer.
type Option func(*Composer)

// WithClock sets the clock used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) { c.logger = logger }
}

// New creates a Composer.
func New(dedup Deduper, source TemplateSource, registry Registry, cfg Config, opts ...Option) (*Composer, error) {
	if dedup == nil || source == nil || registry == nil {
		return nil, fmt.Errorf("deduper, template source and registry are required")
	}
	if cfg.DefaultRate < 0 {
		return nil, fmt.Errorf("default rate must be >= 0, got %v", cfg.DefaultRate)
	}

	c := &Composer{
		dedup:    dedup,
		source:   source,
		registry: registry,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "composer")
	return c, nil
}

// Compose flattens templates into tasks, merges near-duplicates, orders them
// topologically and applies multipliers and rates.
//
// When templates contribute no tasks, the fallback chain supplies one template:
// the typology's configured default, the first template registered under the
// typology, the global default, then the loader's fallback descriptor. The
// resulting plan is never empty.
//
// Task dependencies naming tasks outside the plan are dropped and recorded.
// A cycle among tasks fails with *resolver.CyclicDependencyError.
func (c *Composer) Compose(ctx context.Context, templates []*catalog.TemplateDescriptor, intake *catalog.Intake) (*plan.ComposedPlan, error) {
	if intake == nil {
		intake = &catalog.Intake{}
	}

	var tier FallbackTier
	if countTasks(templates) == 0 {
		var fb *catalog.TemplateDescriptor
		fb, tier = c.fallbackTemplate(ctx, intake)
		templates = []*catalog.TemplateDescriptor{fb}
		c.logger.Warn("no templates to compose, using fallback",
			"typology", intake.Typology,
			"tier", string(tier),
			"template_id", fb.ID)
	}

	flat, priorities := c.flatten(templates, intake)
	deduped := c.dedup.Dedup(flat)
	tasks := deduped.Tasks

	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		index[t.ID] = i
	}

	ids := make([]string, len(tasks))
	prio := make([]int, len(tasks))
	deps := make([][]int, len(tasks))
	var dropped []string
	for i := range tasks {
		ids[i] = tasks[i].ID
		prio[i] = priorities[tasks[i].TemplateID]
		kept := make([]string, 0, len(tasks[i].DependsOn))
		for _, d := range tasks[i].DependsOn {
			j, ok := index[d]
			if !ok {
				dropped = append(dropped, tasks[i].ID+" -> "+d)
				continue
			}
			deps[i] = append(deps[i], j)
			kept = append(kept, d)
		}
		tasks[i].DependsOn = kept
	}

	g := newTaskGraph(ids, prio, deps)
	order := g.order()
	if len(order) != len(tasks) {
		return nil, &resolver.CyclicDependencyError{Kind: "task", Chain: g.findCycle()}
	}

	p := &plan.ComposedPlan{
		Tasks:             make([]plan.Task, 0, len(tasks)),
		Stages:            []plan.Stage{},
		GeneratedAt:       c.now().UTC(),
		SourceTemplateIDs: make([]string, 0, len(templates)),
		Alternates:        deduped.Alternates,
		Fallback:          string(tier),
	}
	if len(dropped) > 0 {
		p.DroppedDependencies = dropped
	}

	for pos, i := range order {
		t := tasks[i]
		t.Position = pos
		p.Tasks = append(p.Tasks, t)
		p.TotalDuration += t.Duration
		p.TotalCost += t.Cost
	}

	seen := make(map[string]bool)
	for _, t := range templates {
		if !seen[t.ID] {
			seen[t.ID] = true
			p.SourceTemplateIDs = append(p.SourceTemplateIDs, t.ID)
		}
	}

	p.Stages = buildStages(templates, p.Tasks)

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("composed plan is inconsistent: %w", err)
	}

	if len(dropped) > 0 {
		c.logger.Info("dropped dependencies outside the plan", "count", len(dropped))
	}

	return p, nil
}

// flatten expands templates into tasks in template then stage then task order,
// qualifying ids and dependency references and computing duration and cost.
// It also returns each template's declared priority.
func (c *Composer) flatten(templates []*catalog.TemplateDescriptor, intake *catalog.Intake) ([]plan.Task, map[string]int) {
	var tasks []plan.Task
	priorities := make(map[string]int, len(templates))
	seen := make(map[string]bool, len(templates))

	for _, tmpl := range templates {
		if seen[tmpl.ID] {
			continue
		}
		seen[tmpl.ID] = true
		priorities[tmpl.ID] = tmpl.Priority

		cm := multiplier(tmpl.Multipliers.Complexity, c.cfg.DefaultMultipliers.Complexity, intake.Complexity)
		sm := multiplier(tmpl.Multipliers.Scale, c.cfg.DefaultMultipliers.Scale, intake.Porte)

		for _, stage := range tmpl.Stages {
			for _, tt := range stage.Tasks {
				deps := make([]string, 0, len(tt.DependsOn))
				for _, d := range tt.DependsOn {
					deps = append(deps, catalog.TaskKey(tmpl.ID, d))
				}
				duration := tt.Duration * cm * sm
				tasks = append(tasks, plan.Task{
					ID:               catalog.TaskKey(tmpl.ID, tt.ID),
					Name:             tt.Name,
					StageID:          tmpl.ID + "/" + stage.ID,
					TemplateID:       tmpl.ID,
					Role:             tt.Role,
					Duration:         duration,
					Cost:             duration * c.Rate(tt.Role),
					ApprovalRequired: tt.ApprovalRequired,
					DependsOn:        deps,
					Position:         len(tasks),
					Status:           plan.StatusPending,
				})
			}
		}
	}
	return tasks, priorities
}

// Rate returns the cost per time unit for role.
func (c *Composer) Rate(role string) float64 {
	if r, ok := c.cfg.Rates[role]; ok {
		return r
	}
	return c.cfg.DefaultRate
}

// multiplier resolves level through the template table, then the default table,
// then 1.0.
func multiplier(table, defaults map[catalog.Level]float64, level catalog.Level) float64 {
	if m, ok := catalog.Lookup(table, level); ok {
		return m
	}
	if m, ok := catalog.Lookup(defaults, level); ok {
		return m
	}
	return 1.0
}

// buildStages groups ordered tasks by stage. Stages are ordered by the position
// of their first task; stages left without tasks are omitted.
func buildStages(templates []*catalog.TemplateDescriptor, tasks []plan.Task) []plan.Stage {
	names := make(map[string]string)
	for _, tmpl := range templates {
		for _, s := range tmpl.Stages {
			names[tmpl.ID+"/"+s.ID] = s.Name
		}
	}

	var stages []plan.Stage
	byID := make(map[string]int)
	for _, t := range tasks {
		i, ok := byID[t.StageID]
		if !ok {
			i = len(stages)
			byID[t.StageID] = i
			stages = append(stages, plan.Stage{
				ID:         t.StageID,
				Name:       names[t.StageID],
				TemplateID: t.TemplateID,
				Position:   i,
			})
		}
		stages[i].TaskIDs = append(stages[i].TaskIDs, t.ID)
	}
	if stages == nil {
		stages = []plan.Stage{}
	}
	return stages
}

// fallbackTemplate walks the fallback chain for intake.
func (c *Composer) fallbackTemplate(ctx context.Context, intake *catalog.Intake) (*catalog.TemplateDescriptor, FallbackTier) {
	usable := func(t *catalog.TemplateDescriptor) bool {
		return t != nil && !t.Fallback && t.TaskCount() > 0
	}

	if id, ok := c.cfg.TypologyDefaults[intake.Typology]; ok && id != "" {
		if t := c.source.Get(ctx, id); usable(t) {
			return t, TierTypologyDefault
		}
	}

	ids, err := c.registry.TemplateIDs(ctx, intake.Typology)
	if err != nil {
		c.logger.Warn("failed to list typology templates for fallback",
			"typology", intake.Typology,
			"error", err.Error())
	} else if len(ids) > 0 {
		if t := c.source.Get(ctx, ids[0]); usable(t) {
			return t, TierTypologyFirst
		}
	}

	if c.cfg.GlobalDefault != "" {
		if t := c.source.Get(ctx, c.cfg.GlobalDefault); usable(t) {
			return t, TierGlobalDefault
		}
	}

	return c.source.Fallback(), TierLoaderFallback
}

func countTasks(templates []*catalog.TemplateDescriptor) int {
	n := 0
	for _, t := range templates {
		n += t.TaskCount()
	}
	return n
}
