package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog source kinds.
const (
	SourceRedis  = "redis"
	SourceSQLite = "sqlite"
	SourceFiles  = "files"
)

// AtelierConfig represents the top-level atelier.yml configuration
type AtelierConfig struct {
	Version     string             `yaml:"version"`
	Tenant      string             `yaml:"tenant"` // Firm namespace for catalog keys
	Catalog     CatalogConfig      `yaml:"catalog"`
	Loader      *LoaderConfig      `yaml:"loader,omitempty"`
	Scoring     *ScoringConfig     `yaml:"scoring,omitempty"`
	Detection   *DetectionConfig   `yaml:"detection,omitempty"`
	Composition *CompositionConfig `yaml:"composition,omitempty"`
	Impact      *ImpactConfig      `yaml:"impact,omitempty"`
	Logging     *LoggingConfig     `yaml:"logging,omitempty"`
}

// CatalogConfig selects where templates are read from
type CatalogConfig struct {
	Source string        `yaml:"source"` // redis, sqlite or files
	Redis  *RedisConfig  `yaml:"redis,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
	Files  *FilesConfig  `yaml:"files,omitempty"`
}

// RedisConfig specifies the Redis catalog connection
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// SQLiteConfig specifies the SQLite catalog database
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// FilesConfig specifies a directory of YAML templates
type FilesConfig struct {
	Dir string `yaml:"dir"`
}

// LoaderConfig specifies template cache behavior
type LoaderConfig struct {
	TTL              *time.Duration `yaml:"ttl,omitempty"`               // Default 10m
	FetchTimeout     *time.Duration `yaml:"fetch_timeout,omitempty"`     // Default 5s
	FallbackTemplate string         `yaml:"fallback_template,omitempty"` // Path to a YAML descriptor served when fetches fail
	Preload          []string       `yaml:"preload,omitempty"`           // Template ids warmed at startup
}

// ScoringConfig specifies scorer thresholds
type ScoringConfig struct {
	MinRelevance   *float64 `yaml:"min_relevance,omitempty"`
	NameFloor      *float64 `yaml:"name_floor,omitempty"`
	NameBonus      *float64 `yaml:"name_bonus,omitempty"`
	CategoryBonus  *float64 `yaml:"category_bonus,omitempty"`
	DedupThreshold *float64 `yaml:"dedup_threshold,omitempty"`
}

// DetectionConfig specifies bucket thresholds
type DetectionConfig struct {
	Primary       *float64 `yaml:"primary,omitempty"`
	Complementary *float64 `yaml:"complementary,omitempty"`
	Optional      *float64 `yaml:"optional,omitempty"`
}

// CompositionConfig specifies rates, multipliers and fallback templates
type CompositionConfig struct {
	Rates            map[string]float64 `yaml:"rates,omitempty"`
	DefaultRate      *float64           `yaml:"default_rate,omitempty"`
	TypologyDefaults map[string]string  `yaml:"typology_defaults,omitempty"`
	GlobalDefault    string             `yaml:"global_default,omitempty"`
	Multipliers      *MultipliersConfig `yaml:"multipliers,omitempty"`
}

// MultipliersConfig is the default multiplier table, keyed by level
type MultipliersConfig struct {
	Complexity map[string]float64 `yaml:"complexity,omitempty"`
	Scale      map[string]float64 `yaml:"scale,omitempty"`
}

// ImpactConfig specifies impact check limits
type ImpactConfig struct {
	SlipThreshold  *float64 `yaml:"slip_threshold,omitempty"`
	MaxActiveTasks *int     `yaml:"max_active_tasks,omitempty"`
}

// LoggingConfig specifies structured log output
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error (default info)
	Format string `yaml:"format,omitempty"` // json or text (default json)
}

// Validate performs strict validation on the configuration and fills defaults
func (c *AtelierConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}

	if err := c.Catalog.Validate(); err != nil {
		return err
	}

	if c.Loader == nil {
		c.Loader = &LoaderConfig{}
	}
	if err := c.Loader.applyDefaults(); err != nil {
		return err
	}

	if c.Scoring == nil {
		c.Scoring = &ScoringConfig{}
	}
	if err := c.Scoring.applyDefaults(); err != nil {
		return err
	}

	if c.Detection == nil {
		c.Detection = &DetectionConfig{}
	}
	if err := c.Detection.applyDefaults(); err != nil {
		return err
	}

	if c.Composition == nil {
		c.Composition = &CompositionConfig{}
	}
	if err := c.Composition.applyDefaults(); err != nil {
		return err
	}

	if c.Impact == nil {
		c.Impact = &ImpactConfig{}
	}
	if err := c.Impact.applyDefaults(); err != nil {
		return err
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	return c.Logging.applyDefaults()
}

// Validate checks that the selected source has its settings
func (c *CatalogConfig) Validate() error {
	switch c.Source {
	case SourceRedis:
		if c.Redis == nil || c.Redis.Addr == "" {
			return fmt.Errorf("catalog.redis.addr is required when source is redis")
		}
	case SourceSQLite:
		if c.SQLite == nil || c.SQLite.Path == "" {
			return fmt.Errorf("catalog.sqlite.path is required when source is sqlite")
		}
	case SourceFiles:
		if c.Files == nil || c.Files.Dir == "" {
			return fmt.Errorf("catalog.files.dir is required when source is files")
		}
		if info, err := os.Stat(c.Files.Dir); err != nil || !info.IsDir() {
			return fmt.Errorf("catalog.files.dir does not exist: %s", c.Files.Dir)
		}
	default:
		return fmt.Errorf("invalid catalog.source: %q (must be 'redis', 'sqlite' or 'files')", c.Source)
	}
	return nil
}

func (l *LoaderConfig) applyDefaults() error {
	if l.TTL == nil {
		ttl := 10 * time.Minute
		l.TTL = &ttl
	}
	if l.FetchTimeout == nil {
		timeout := 5 * time.Second
		l.FetchTimeout = &timeout
	}
	if *l.TTL <= 0 {
		return fmt.Errorf("loader.ttl must be > 0, got %s", *l.TTL)
	}
	if *l.FetchTimeout <= 0 {
		return fmt.Errorf("loader.fetch_timeout must be > 0, got %s", *l.FetchTimeout)
	}
	if l.FallbackTemplate != "" {
		if _, err := os.Stat(l.FallbackTemplate); os.IsNotExist(err) {
			return fmt.Errorf("loader.fallback_template does not exist: %s", l.FallbackTemplate)
		}
	}
	return nil
}

func (s *ScoringConfig) applyDefaults() error {
	fields := []struct {
		name  string
		value **float64
		def   float64
	}{
		{"min_relevance", &s.MinRelevance, 0.3},
		{"name_floor", &s.NameFloor, 0.9},
		{"name_bonus", &s.NameBonus, 0.3},
		{"category_bonus", &s.CategoryBonus, 0.1},
		{"dedup_threshold", &s.DedupThreshold, 0.85},
	}
	for _, f := range fields {
		if err := defaultUnit(f.value, f.def, "scoring."+f.name); err != nil {
			return err
		}
	}
	return nil
}

func (d *DetectionConfig) applyDefaults() error {
	if err := defaultUnit(&d.Primary, 0.8, "detection.primary"); err != nil {
		return err
	}
	if err := defaultUnit(&d.Complementary, 0.5, "detection.complementary"); err != nil {
		return err
	}
	if err := defaultUnit(&d.Optional, 0.3, "detection.optional"); err != nil {
		return err
	}
	if !(*d.Optional <= *d.Complementary && *d.Complementary <= *d.Primary) {
		return fmt.Errorf("detection thresholds must satisfy optional <= complementary <= primary")
	}
	return nil
}

func (c *CompositionConfig) applyDefaults() error {
	if c.DefaultRate == nil {
		rate := 0.0
		c.DefaultRate = &rate
	}
	if *c.DefaultRate < 0 {
		return fmt.Errorf("composition.default_rate must be >= 0, got %v", *c.DefaultRate)
	}
	for role, rate := range c.Rates {
		if rate < 0 {
			return fmt.Errorf("composition.rates.%s must be >= 0, got %v", role, rate)
		}
	}
	if c.Multipliers != nil {
		for name, table := range map[string]map[string]float64{"complexity": c.Multipliers.Complexity, "scale": c.Multipliers.Scale} {
			for level, m := range table {
				if level != "low" && level != "medium" && level != "high" {
					return fmt.Errorf("composition.multipliers.%s: invalid level: %s (must be 'low', 'medium' or 'high')", name, level)
				}
				if m <= 0 {
					return fmt.Errorf("composition.multipliers.%s.%s must be > 0, got %v", name, level, m)
				}
			}
		}
	}
	return nil
}

func (i *ImpactConfig) applyDefaults() error {
	if i.SlipThreshold == nil {
		slip := 10.0
		i.SlipThreshold = &slip
	}
	if i.MaxActiveTasks == nil {
		max := 5
		i.MaxActiveTasks = &max
	}
	if *i.SlipThreshold < 0 {
		return fmt.Errorf("impact.slip_threshold must be >= 0, got %v", *i.SlipThreshold)
	}
	if *i.MaxActiveTasks < 1 {
		return fmt.Errorf("impact.max_active_tasks must be >= 1, got %d", *i.MaxActiveTasks)
	}
	return nil
}

func (l *LoggingConfig) applyDefaults() error {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be 'debug', 'info', 'warn' or 'error')", l.Level)
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("invalid logging.format: %s (must be 'json' or 'text')", l.Format)
	}
	return nil
}

// defaultUnit sets *v to def when unset and checks it lies in [0,1]
func defaultUnit(v **float64, def float64, name string) error {
	if *v == nil {
		d := def
		*v = &d
	}
	if **v < 0 || **v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %v", name, **v)
	}
	return nil
}

// Load reads and validates atelier.yml from the specified path
func Load(path string) (*AtelierConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config AtelierConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
