// Package detector decides which catalog templates an intake activates and how
// strongly, sorting them into primary, complementary and optional buckets.
package detector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dyluth/atelier/internal/scorer"
	"github.com/dyluth/atelier/pkg/catalog"
	"golang.org/x/sync/errgroup"
)

// Registry lists the template ids registered under a typology, in registration order.
type Registry interface {
	TemplateIDs(ctx context.Context, typology string) ([]string, error)
}

// TemplateSource resolves template ids to descriptors. It never fails: a
// descriptor with Fallback set stands in for a template that could not be loaded.
type TemplateSource interface {
	Get(ctx context.Context, key string) *catalog.TemplateDescriptor
}

// Bucket classifies an activated template.
type Bucket string

const (
	BucketPrimary       Bucket = "primary"
	BucketComplementary Bucket = "complementary"
	BucketOptional      Bucket = "optional"
)

// Weight is the share of a template's base duration counted towards the
// detection estimate.
func (b Bucket) Weight() float64 {
	switch b {
	case BucketPrimary:
		return 1.0
	case BucketComplementary:
		return 0.6
	case BucketOptional:
		return 0.3
	default:
		return 0
	}
}

// Default bucket thresholds.
const (
	DefaultPrimaryThreshold       = 0.8
	DefaultComplementaryThreshold = 0.5
	DefaultOptionalThreshold      = 0.3
)

// Config holds bucket thresholds. Zero values take the defaults.
type Config struct {
	PrimaryThreshold       float64
	ComplementaryThreshold float64
	OptionalThreshold      float64
}

// Candidate is one activated template with its score and bucket.
type Candidate struct {
	Template *catalog.TemplateDescriptor `json:"-"`
	Match    scorer.CandidateMatch       `json:"match"`
	Bucket   Bucket                      `json:"bucket"`
}

// ID returns the template id of the candidate.
func (c Candidate) ID() string {
	return c.Match.TemplateID
}

// Detection is the result of running the detector on one intake.
type Detection struct {
	Typology          string      `json:"typology"`
	Primary           []Candidate `json:"primary"`
	Complementary     []Candidate `json:"complementary"`
	Optional          []Candidate `json:"optional"`
	Inactive          []string    `json:"inactive,omitempty"`  // Activation rule evaluated false
	Discarded         []string    `json:"discarded,omitempty"` // Scored below the optional threshold
	Degraded          []string    `json:"degraded,omitempty"`  // Could not be loaded; fallback served
	EstimatedDuration float64     `json:"estimated_duration"`
}

// Activated returns primary, complementary then optional candidates, each
// bucket in discovery order.
func (d *Detection) Activated() []Candidate {
	out := make([]Candidate, 0, len(d.Primary)+len(d.Complementary)+len(d.Optional))
	out = append(out, d.Primary...)
	out = append(out, d.Complementary...)
	out = append(out, d.Optional...)
	return out
}

// Empty reports whether no template was activated.
func (d *Detection) Empty() bool {
	return len(d.Primary)+len(d.Complementary)+len(d.Optional) == 0
}

// Detector evaluates intakes against the catalog. It keeps no mutable state.
type Detector struct {
	registry Registry
	source   TemplateSource
	scorer   *scorer.Scorer
	cfg      Config
	logger   *slog.Logger
}

// New creates a Detector.
func New(registry Registry, source TemplateSource, sc *scorer.Scorer, cfg Config, logger *slog.Logger) (*Detector, error) {
	if registry == nil || source == nil || sc == nil {
		return nil, fmt.Errorf("registry, template source and scorer are required")
	}
	if cfg.PrimaryThreshold == 0 {
		cfg.PrimaryThreshold = DefaultPrimaryThreshold
	}
	if cfg.ComplementaryThreshold == 0 {
		cfg.ComplementaryThreshold = DefaultComplementaryThreshold
	}
	if cfg.OptionalThreshold == 0 {
		cfg.OptionalThreshold = DefaultOptionalThreshold
	}
	if !(cfg.OptionalThreshold <= cfg.ComplementaryThreshold && cfg.ComplementaryThreshold <= cfg.PrimaryThreshold) {
		return nil, fmt.Errorf("thresholds must satisfy optional <= complementary <= primary (got %v, %v, %v)",
			cfg.OptionalThreshold, cfg.ComplementaryThreshold, cfg.PrimaryThreshold)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{
		registry: registry,
		source:   source,
		scorer:   sc,
		cfg:      cfg,
		logger:   logger.With("component", "detector"),
	}, nil
}

// Bucket returns the bucket for score, or false when the score is discarded.
func (d *Detector) Bucket(score float64) (Bucket, bool) {
	switch {
	case score >= d.cfg.PrimaryThreshold:
		return BucketPrimary, true
	case score >= d.cfg.ComplementaryThreshold:
		return BucketComplementary, true
	case score >= d.cfg.OptionalThreshold:
		return BucketOptional, true
	default:
		return "", false
	}
}

// Detect loads every template registered under the intake's typology, applies
// its activation rule, scores the intake against it and buckets the result.
// Registry failures are returned; templates that fail to load are reported in
// Degraded and otherwise skipped.
func (d *Detector) Detect(ctx context.Context, intake *catalog.Intake) (*Detection, error) {
	if intake == nil {
		return nil, fmt.Errorf("intake cannot be nil")
	}

	ids, err := d.registry.TemplateIDs(ctx, intake.Typology)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates for typology %q: %w", intake.Typology, err)
	}
	ids = unique(ids)

	templates := make([]*catalog.TemplateDescriptor, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			templates[i] = d.source.Get(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signal := intake.SignalText()
	det := &Detection{
		Typology:      intake.Typology,
		Primary:       []Candidate{},
		Complementary: []Candidate{},
		Optional:      []Candidate{},
	}

	for i, id := range ids {
		t := templates[i]
		if t == nil || t.Fallback {
			det.Degraded = append(det.Degraded, id)
			continue
		}

		if !t.Activation.Evaluate(intake) {
			det.Inactive = append(det.Inactive, id)
			continue
		}

		m := d.scorer.Match(signal, t)
		bucket, ok := d.Bucket(m.Score)
		if !ok {
			det.Discarded = append(det.Discarded, id)
			continue
		}

		c := Candidate{Template: t, Match: m, Bucket: bucket}
		switch bucket {
		case BucketPrimary:
			det.Primary = append(det.Primary, c)
		case BucketComplementary:
			det.Complementary = append(det.Complementary, c)
		case BucketOptional:
			det.Optional = append(det.Optional, c)
		}
		det.EstimatedDuration += t.BaseDuration * bucket.Weight()
	}

	if len(det.Degraded) > 0 {
		d.logger.Warn("detection ran with degraded templates",
			"typology", intake.Typology,
			"degraded", det.Degraded)
	}

	return det, nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
