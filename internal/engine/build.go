package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dyluth/atelier/internal/catalogfs"
	"github.com/dyluth/atelier/internal/composer"
	"github.com/dyluth/atelier/internal/config"
	"github.com/dyluth/atelier/internal/detector"
	"github.com/dyluth/atelier/internal/impact"
	"github.com/dyluth/atelier/internal/loader"
	"github.com/dyluth/atelier/internal/resolver"
	"github.com/dyluth/atelier/internal/scorer"
	"github.com/dyluth/atelier/pkg/catalog"
)

// Catalog is a template store the pipeline can read: the Redis client, the
// SQLite store and the YAML directory store all satisfy it.
type Catalog interface {
	TemplateIDs(ctx context.Context, typology string) ([]string, error)
	Fetch(ctx context.Context, id string) (*catalog.TemplateDescriptor, error)
}

// Pipeline is an Engine together with the loader that caches its templates.
type Pipeline struct {
	*Engine
	Loader *loader.Loader
}

// Build constructs the full pipeline over cat from a validated configuration.
func Build(cfg *config.AtelierConfig, cat Catalog, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil || cat == nil {
		return nil, fmt.Errorf("config and catalog are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var fallback *catalog.TemplateDescriptor
	if path := cfg.Loader.FallbackTemplate; path != "" {
		t, err := catalogfs.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load fallback template: %w", err)
		}
		fallback = t
	}

	ld, err := loader.New(cat.Fetch, loader.Options{
		TTL:          *cfg.Loader.TTL,
		FetchTimeout: *cfg.Loader.FetchTimeout,
		Fallback:     fallback,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create loader: %w", err)
	}

	sc := scorer.New(scorer.Config{
		MinRelevance:   *cfg.Scoring.MinRelevance,
		NameFloor:      *cfg.Scoring.NameFloor,
		NameBonus:      *cfg.Scoring.NameBonus,
		CategoryBonus:  *cfg.Scoring.CategoryBonus,
		DedupThreshold: *cfg.Scoring.DedupThreshold,
	})

	det, err := detector.New(cat, ld, sc, detector.Config{
		PrimaryThreshold:       *cfg.Detection.Primary,
		ComplementaryThreshold: *cfg.Detection.Complementary,
		OptionalThreshold:      *cfg.Detection.Optional,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	res, err := resolver.New(ld, sc, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	comp := cfg.Composition
	cmp, err := composer.New(res, ld, cat, composer.Config{
		Rates:              comp.Rates,
		DefaultRate:        *comp.DefaultRate,
		DefaultMultipliers: multipliers(comp.Multipliers),
		TypologyDefaults:   comp.TypologyDefaults,
		GlobalDefault:      comp.GlobalDefault,
	}, composer.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create composer: %w", err)
	}

	val := impact.New(sc, impact.Config{
		SlipThreshold:  *cfg.Impact.SlipThreshold,
		MaxActiveTasks: *cfg.Impact.MaxActiveTasks,
		Rates:          comp.Rates,
		DefaultRate:    *comp.DefaultRate,
	}, logger)

	eng, err := New(Components{Detector: det, Resolver: res, Composer: cmp, Validator: val}, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Engine: eng, Loader: ld}, nil
}

// Warm fetches ids into the loader cache and waits for them.
func (p *Pipeline) Warm(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return p.Loader.PreloadAll(ctx, ids)
}

func multipliers(m *config.MultipliersConfig) catalog.MultiplierTable {
	var table catalog.MultiplierTable
	if m == nil {
		return table
	}
	convert := func(in map[string]float64) map[catalog.Level]float64 {
		if len(in) == 0 {
			return nil
		}
		out := make(map[catalog.Level]float64, len(in))
		for level, v := range in {
			out[catalog.Level(level)] = v
		}
		return out
	}
	table.Complexity = convert(m.Complexity)
	table.Scale = convert(m.Scale)
	return table
}
