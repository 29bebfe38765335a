package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dyluth/atelier/internal/catalogdb"
	"github.com/dyluth/atelier/internal/catalogfs"
	"github.com/dyluth/atelier/internal/config"
	"github.com/dyluth/atelier/internal/engine"
	"github.com/dyluth/atelier/internal/listing"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/pkg/catalog"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// store is what every catalog backend offers the commands.
type store interface {
	engine.Catalog
	listing.Lister
}

// session holds the configuration, catalog connection and pipeline of one
// command invocation.
type session struct {
	cfg      *config.AtelierConfig
	store    store
	redis    *catalog.Client  // Set when the catalog lives in Redis
	db       *catalogdb.Store // Set when the catalog lives in SQLite
	pipeline *engine.Pipeline
	logger   *slog.Logger
}

// logOutput receives structured logs. Tests redirect it.
var logOutput io.Writer = os.Stderr

// openSession loads the configuration and connects to the configured catalog.
// The pipeline is built and preloaded only when withPipeline is set.
func openSession(ctx context.Context, withPipeline bool) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Pass the configuration explicitly:\n  atelier --config path/to/atelier.yml <command>"},
		)
	}

	s := &session{cfg: cfg, logger: newLogger(cfg.Logging, logOutput)}

	switch cfg.Catalog.Source {
	case config.SourceRedis:
		client, err := catalog.NewClient(&redis.Options{
			Addr:     cfg.Catalog.Redis.Addr,
			Password: cfg.Catalog.Redis.Password,
			DB:       cfg.Catalog.Redis.DB,
		}, cfg.Tenant)
		if err != nil {
			return nil, fmt.Errorf("failed to create catalog client: %w", err)
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, printer.ErrorWithContext(
				"Redis connection failed",
				fmt.Sprintf("Could not connect to Redis at %s", cfg.Catalog.Redis.Addr),
				map[string]string{"Tenant": cfg.Tenant},
				[]string{"Check that Redis is running and catalog.redis.addr is correct"},
			)
		}
		s.redis, s.store = client, client

	case config.SourceSQLite:
		db, err := catalogdb.Open(cfg.Catalog.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog database: %w", err)
		}
		s.db, s.store = db, db

	case config.SourceFiles:
		fs, err := catalogfs.Open(cfg.Catalog.Files.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open template directory: %w", err)
		}
		s.store = fs
	}

	if withPipeline {
		s.pipeline, err = engine.Build(cfg, s.store, s.logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := s.pipeline.Warm(ctx, cfg.Loader.Preload); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to preload templates: %w", err)
		}
	}

	return s, nil
}

// put writes a template to a writable catalog.
func (s *session) put(ctx context.Context, t *catalog.TemplateDescriptor) error {
	switch {
	case s.redis != nil:
		return s.redis.PutTemplate(ctx, t)
	case s.db != nil:
		return s.db.Put(ctx, t)
	default:
		return fmt.Errorf("catalog source %q is read-only", s.cfg.Catalog.Source)
	}
}

// remove deletes a template from a writable catalog.
func (s *session) remove(ctx context.Context, id string) error {
	switch {
	case s.redis != nil:
		return s.redis.DeleteTemplate(ctx, id)
	case s.db != nil:
		return s.db.Delete(ctx, id)
	default:
		return fmt.Errorf("catalog source %q is read-only", s.cfg.Catalog.Source)
	}
}

// Close releases the catalog connection.
func (s *session) Close() error {
	switch {
	case s.redis != nil:
		return s.redis.Close()
	case s.db != nil:
		return s.db.Close()
	}
	return nil
}

func newLogger(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// readYAML decodes a YAML (or JSON) file into v, rejecting unknown keys.
func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
