package impact

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/dyluth/atelier/internal/scorer"
	"github.com/dyluth/atelier/pkg/plan"
	"github.com/google/uuid"
)

// Default check limits.
const (
	DefaultSlipThreshold  = 10.0
	DefaultMaxActiveTasks = 5
)

// Config holds check limits and the rate table used to price schedule slips.
type Config struct {
	SlipThreshold  float64            // Added duration above which a schedule warning is raised
	MaxActiveTasks int                // Active tasks an owner may hold before a resource warning
	Rates          map[string]float64 // Cost per time unit by role
	DefaultRate    float64
}

// Validator runs every check on a mutation. It keeps no mutable state.
type Validator struct {
	scorer *scorer.Scorer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a Validator. Zero limits take the defaults.
func New(sc *scorer.Scorer, cfg Config, logger *slog.Logger) *Validator {
	if sc == nil {
		sc = scorer.New(scorer.Config{})
	}
	if cfg.SlipThreshold == 0 {
		cfg.SlipThreshold = DefaultSlipThreshold
	}
	if cfg.MaxActiveTasks == 0 {
		cfg.MaxActiveTasks = DefaultMaxActiveTasks
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		scorer: sc,
		cfg:    cfg,
		logger: logger.With("component", "impact"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Validate runs the dependency, schedule, resource-load and duplicate checks and
// aggregates their findings. It never fails: a nil plan, a malformed request or
// a panic inside a check yields a report that requires confirmation.
func (v *Validator) Validate(ctx context.Context, req MutationRequest, p *plan.ComposedPlan) (report *Report) {
	report = &Report{
		ID:          v.newID(),
		Request:     req,
		Findings:    []Finding{},
		EvaluatedAt: v.now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("impact check panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
				"target_id", req.TargetID)
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityWarning,
				Category: CategoryInternal,
				Message:  "impact could not be fully evaluated; review the change manually",
			})
		}
		aggregate(report)
	}()

	if p == nil {
		v.logger.Warn("impact evaluated without a plan", "target_id", req.TargetID)
		report.Findings = append(report.Findings, internalFinding("no plan supplied"))
		return report
	}
	if err := req.Validate(); err != nil {
		v.logger.Warn("invalid mutation request", "error", err.Error())
		report.Findings = append(report.Findings, internalFinding(err.Error()))
		return report
	}
	if err := ctx.Err(); err != nil {
		report.Findings = append(report.Findings, internalFinding(err.Error()))
		return report
	}

	if req.Op == OpCreate && req.Payload.ID == "" {
		req.Payload.ID = v.newID()
		report.Request = req
	}

	checks := []func(MutationRequest, *plan.ComposedPlan) []Finding{
		v.checkDependencies,
		v.checkSchedule,
		v.checkResourceLoad,
		v.checkDuplicates,
	}
	for _, check := range checks {
		report.Findings = append(report.Findings, check(req, p)...)
	}
	return report
}

func internalFinding(msg string) Finding {
	return Finding{
		Severity: SeverityWarning,
		Category: CategoryInternal,
		Message:  "impact could not be evaluated: " + msg,
	}
}

// aggregate derives verdict and deltas from the findings.
func aggregate(r *Report) {
	r.CanProceed = true
	r.RequiresConfirmation = false
	r.ProjectedFinishDelta = 0
	r.ProjectedCostDelta = 0

	affected := make(map[string]bool)
	for _, f := range r.Findings {
		switch f.Severity {
		case SeverityError:
			r.CanProceed = false
		case SeverityWarning:
			r.RequiresConfirmation = true
		case SeverityInfo:
		}
		r.ProjectedFinishDelta += f.FinishImpact
		r.ProjectedCostDelta += f.CostImpact
		for _, id := range f.AffectedIDs {
			affected[id] = true
		}
	}

	r.AffectedTaskIDs = make([]string, 0, len(affected))
	for id := range affected {
		r.AffectedTaskIDs = append(r.AffectedTaskIDs, id)
	}
	sort.Strings(r.AffectedTaskIDs)

	switch {
	case !r.CanProceed:
		r.Outcome = OutcomeRejected
	case r.RequiresConfirmation:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeAccepted
	}
}

func (v *Validator) rate(role string) float64 {
	if r, ok := v.cfg.Rates[role]; ok {
		return r
	}
	return v.cfg.DefaultRate
}
