// Package engine wires detection, resolution, composition and impact checks
// into one planning pipeline.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dyluth/atelier/internal/composer"
	"github.com/dyluth/atelier/internal/detector"
	"github.com/dyluth/atelier/internal/impact"
	"github.com/dyluth/atelier/internal/resolver"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/dyluth/atelier/pkg/plan"
)

// Components are the stages of the pipeline. All are required.
type Components struct {
	Detector  *detector.Detector
	Resolver  *resolver.Resolver
	Composer  *composer.Composer
	Validator *impact.Validator
}

// Engine runs intakes through the pipeline. It keeps no mutable state of its
// own; concurrency guarantees are those of its components.
type Engine struct {
	detector  *detector.Detector
	resolver  *resolver.Resolver
	composer  *composer.Composer
	validator *impact.Validator
	logger    *slog.Logger
}

// Result carries every intermediate product of a Plan call.
type Result struct {
	Detection  *detector.Detection  `json:"detection"`
	Resolution *resolver.Resolution `json:"resolution"`
	Plan       *plan.ComposedPlan   `json:"plan"`
}

// New creates an Engine from its components.
func New(c Components, logger *slog.Logger) (*Engine, error) {
	if c.Detector == nil || c.Resolver == nil || c.Composer == nil || c.Validator == nil {
		return nil, fmt.Errorf("detector, resolver, composer and validator are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		detector:  c.Detector,
		resolver:  c.Resolver,
		composer:  c.Composer,
		validator: c.Validator,
		logger:    logger.With("component", "engine"),
	}, nil
}

// Plan detects the templates an intake activates, closes them over their
// dependencies and composes the result into a plan.
//
// Missing dependencies and cycles are returned as errors; load failures and
// empty detections degrade to fallback templates instead.
func (e *Engine) Plan(ctx context.Context, intake *catalog.Intake) (*Result, error) {
	if intake == nil {
		return nil, fmt.Errorf("intake cannot be nil")
	}
	if err := intake.Complexity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid intake complexity: %w", err)
	}
	if err := intake.Porte.Validate(); err != nil {
		return nil, fmt.Errorf("invalid intake porte: %w", err)
	}

	det, err := e.detector.Detect(ctx, intake)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	e.logger.Info("detection complete",
		"event_type", "detection_complete",
		"typology", intake.Typology,
		"primary", len(det.Primary),
		"complementary", len(det.Complementary),
		"optional", len(det.Optional),
		"degraded", len(det.Degraded),
		"estimated_duration", det.EstimatedDuration)

	activated := det.Activated()
	seeds := make([]resolver.Seed, len(activated))
	for i, c := range activated {
		seeds[i] = resolver.Seed{ID: c.ID(), Score: c.Match.Score}
	}

	res, err := e.resolver.Resolve(ctx, seeds)
	if err != nil {
		return nil, err
	}

	p, err := e.composer.Compose(ctx, res.Templates, intake)
	if err != nil {
		return nil, err
	}
	e.logger.Info("plan composed",
		"event_type", "plan_composed",
		"typology", intake.Typology,
		"templates", p.SourceTemplateIDs,
		"tasks", len(p.Tasks),
		"total_duration", p.TotalDuration,
		"total_cost", p.TotalCost,
		"fallback", p.Fallback)

	return &Result{Detection: det, Resolution: res, Plan: p}, nil
}

// Detect runs detection only.
func (e *Engine) Detect(ctx context.Context, intake *catalog.Intake) (*detector.Detection, error) {
	return e.detector.Detect(ctx, intake)
}

// Evaluate checks a proposed mutation against p. It never fails.
func (e *Engine) Evaluate(ctx context.Context, req impact.MutationRequest, p *plan.ComposedPlan) *impact.Report {
	report := e.validator.Validate(ctx, req, p)
	e.logger.Info("mutation evaluated",
		"event_type", "mutation_evaluated",
		"report_id", report.ID,
		"op", string(req.Op),
		"entity", string(req.Entity),
		"target_id", report.Request.TargetID,
		"outcome", string(report.Outcome),
		"findings", len(report.Findings))
	return report
}
