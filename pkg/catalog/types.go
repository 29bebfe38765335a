// Package catalog provides type-safe Go definitions and Redis schema patterns
// for the atelier template catalog. The catalog is the shared source of reusable
// stage/task bundles (templates) that detection and composition draw from.
//
// All Redis keys and channels are namespaced by tenant name to enable multiple
// firms to safely coexist on a single Redis server.
package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// TemplateDescriptor is an immutable, reusable bundle of stages and tasks with the
// metadata needed to detect, resolve and compose it into a plan.
type TemplateDescriptor struct {
	ID           string          `json:"id" yaml:"id"`                                         // Unique template identifier (e.g. "CASA_SIMPLES")
	Name         string          `json:"name" yaml:"name"`                                     // Display name, matched against free text
	Category     string          `json:"category" yaml:"category"`                             // Free-form category (e.g. "architecture", "interiors")
	Typology     string          `json:"typology" yaml:"typology"`                             // Registry bucket the template is listed under
	Keywords     []string        `json:"keywords" yaml:"keywords"`                             // Signal keywords used by the scorer
	BaseDuration float64         `json:"base_duration" yaml:"base_duration"`                   // Nominal duration in abstract time units
	Priority     int             `json:"priority" yaml:"priority"`                             // Declared priority, lower composes first
	Multipliers  MultiplierTable `json:"multipliers" yaml:"multipliers"`                       // Complexity and scale multipliers
	Dependencies []string        `json:"dependencies" yaml:"dependencies"`                     // Template ids this template requires
	Incompatible []string        `json:"incompatible" yaml:"incompatible"`                     // Template ids that cannot coexist with this one
	Stages       []StageTemplate `json:"stages" yaml:"stages"`                                 // Ordered internal stages
	Activation   *Rule           `json:"activation,omitempty" yaml:"activation,omitempty"`     // nil means always active
	Fallback     bool            `json:"fallback,omitempty" yaml:"fallback,omitempty"`         // Set on descriptors produced by a degraded load
}

// StageTemplate is an ordered group of tasks inside a template.
type StageTemplate struct {
	ID    string         `json:"id" yaml:"id"`
	Name  string         `json:"name" yaml:"name"`
	Tasks []TaskTemplate `json:"tasks" yaml:"tasks"`
}

// TaskTemplate is a unit of work as authored in the catalog.
// DependsOn entries are either local task ids ("T02") or qualified ids
// naming a task of another template ("PROJETO_LEGAL/T01").
type TaskTemplate struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	Role             string   `json:"role" yaml:"role"`
	Duration         float64  `json:"duration" yaml:"duration"`
	ApprovalRequired bool     `json:"approval_required,omitempty" yaml:"approval_required,omitempty"`
	DependsOn        []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// MultiplierTable maps intake levels to duration multipliers.
// Missing levels resolve to 1.0.
type MultiplierTable struct {
	Complexity map[Level]float64 `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Scale      map[Level]float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// Level is a coarse intake rating used for complexity and scale (porte).
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Normalize maps the empty level to medium.
func (l Level) Normalize() Level {
	if l == "" {
		return LevelMedium
	}
	return l
}

// Validate checks if the Level is a valid enum value. Empty is accepted and means medium.
func (l Level) Validate() error {
	switch l {
	case "", LevelLow, LevelMedium, LevelHigh:
		return nil
	default:
		return fmt.Errorf("unknown level: %q", l)
	}
}

// Lookup returns the multiplier for level in table and whether one was declared.
func Lookup(table map[Level]float64, level Level) (float64, bool) {
	m, ok := table[level.Normalize()]
	if !ok || m <= 0 {
		return 1.0, false
	}
	return m, true
}

// Intake is the structured project description that drives detection.
// It is validated upstream; the core only reads it.
type Intake struct {
	Typology    string   `json:"typology" yaml:"typology"`
	Subtype     string   `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	Tier        string   `json:"tier,omitempty" yaml:"tier,omitempty"`
	Area        float64  `json:"area,omitempty" yaml:"area,omitempty"`
	BudgetBand  string   `json:"budget_band,omitempty" yaml:"budget_band,omitempty"`
	Priorities  []string `json:"priorities,omitempty" yaml:"priorities,omitempty"`
	Disciplines []string `json:"disciplines,omitempty" yaml:"disciplines,omitempty"`
	Complexity  Level    `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Porte       Level    `json:"porte,omitempty" yaml:"porte,omitempty"`
}

// SignalText joins the free-text fields of the intake into the text the scorer reads.
func (in *Intake) SignalText() string {
	parts := []string{in.Typology, in.Subtype, in.Tier, in.BudgetBand}
	parts = append(parts, in.Priorities...)
	parts = append(parts, in.Disciplines...)
	return strings.Join(parts, " ")
}

var templateIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// TaskKey returns the plan-wide identifier of a task authored in template templateID.
// Qualified references are returned unchanged.
func TaskKey(templateID, ref string) string {
	if strings.Contains(ref, "/") {
		return ref
	}
	return templateID + "/" + ref
}

// TaskCount returns the number of tasks across all stages.
func (t *TemplateDescriptor) TaskCount() int {
	n := 0
	for _, s := range t.Stages {
		n += len(s.Tasks)
	}
	return n
}

// Validate checks if the TemplateDescriptor has valid field values.
// Returns an error if any validation fails.
func (t *TemplateDescriptor) Validate() error {
	if !templateIDPattern.MatchString(t.ID) {
		return fmt.Errorf("invalid template ID: %q", t.ID)
	}

	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template %s: name cannot be empty", t.ID)
	}

	if t.Typology == "" {
		return fmt.Errorf("template %s: typology cannot be empty", t.ID)
	}

	if t.BaseDuration < 0 {
		return fmt.Errorf("template %s: base_duration must be >= 0, got %v", t.ID, t.BaseDuration)
	}

	for level, m := range t.Multipliers.Complexity {
		if err := level.Validate(); err != nil {
			return fmt.Errorf("template %s: complexity multiplier: %w", t.ID, err)
		}
		if m <= 0 {
			return fmt.Errorf("template %s: complexity multiplier for %s must be positive", t.ID, level)
		}
	}
	for level, m := range t.Multipliers.Scale {
		if err := level.Validate(); err != nil {
			return fmt.Errorf("template %s: scale multiplier: %w", t.ID, err)
		}
		if m <= 0 {
			return fmt.Errorf("template %s: scale multiplier for %s must be positive", t.ID, level)
		}
	}

	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("template %s: cannot depend on itself", t.ID)
		}
	}
	for _, inc := range t.Incompatible {
		if inc == t.ID {
			return fmt.Errorf("template %s: cannot be incompatible with itself", t.ID)
		}
	}

	stageIDs := make(map[string]bool)
	taskIDs := make(map[string]bool)
	for i, stage := range t.Stages {
		if stage.ID == "" {
			return fmt.Errorf("template %s: stage at index %d has no id", t.ID, i)
		}
		if stageIDs[stage.ID] {
			return fmt.Errorf("template %s: duplicate stage id %q", t.ID, stage.ID)
		}
		stageIDs[stage.ID] = true

		for j, task := range stage.Tasks {
			if task.ID == "" || strings.Contains(task.ID, "/") {
				return fmt.Errorf("template %s: stage %s task at index %d has invalid id %q", t.ID, stage.ID, j, task.ID)
			}
			if taskIDs[task.ID] {
				return fmt.Errorf("template %s: duplicate task id %q", t.ID, task.ID)
			}
			taskIDs[task.ID] = true

			if task.Duration < 0 {
				return fmt.Errorf("template %s: task %s duration must be >= 0", t.ID, task.ID)
			}
		}
	}

	// Local dependency references must resolve inside the template.
	for _, stage := range t.Stages {
		for _, task := range stage.Tasks {
			for _, dep := range task.DependsOn {
				if strings.Contains(dep, "/") {
					continue
				}
				if !taskIDs[dep] {
					return fmt.Errorf("template %s: task %s depends on unknown task %q", t.ID, task.ID, dep)
				}
			}
		}
	}

	if t.Activation != nil {
		if err := t.Activation.Validate(); err != nil {
			return fmt.Errorf("template %s: invalid activation rule: %w", t.ID, err)
		}
	}

	return nil
}
