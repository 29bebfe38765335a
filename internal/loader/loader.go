// Package loader caches catalog templates with a TTL and guarantees that at most
// one fetch per key is in flight at any time.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyluth/atelier/pkg/catalog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads one template from the backing catalog store.
type FetchFunc func(ctx context.Context, key string) (*catalog.TemplateDescriptor, error)

// Default settings applied when Options leaves them zero.
const (
	DefaultTTL          = 10 * time.Minute
	DefaultFetchTimeout = 5 * time.Second
	DefaultFallbackID   = "GENERIC"
)

// Options configures a Loader.
type Options struct {
	TTL          time.Duration               // Cache entry lifetime (default 10m)
	FetchTimeout time.Duration               // Per-fetch deadline (default 5s)
	Fallback     *catalog.TemplateDescriptor // Served when a fetch fails (default DefaultFallback())
	Logger       *slog.Logger
	Now          func() time.Time // Clock, overridable in tests
}

// Loader fetches templates through a FetchFunc, caches successes for a TTL and
// deduplicates concurrent fetches of the same key.
//
// The cache map is guarded by mu. In-flight fetches are tracked by a
// singleflight.Group; inside the flight the cache is re-checked, so a caller that
// missed the cache just before another fetch completed never triggers a second
// fetch for a fresh key.
type Loader struct {
	fetch    FetchFunc
	ttl      time.Duration
	timeout  time.Duration
	fallback *catalog.TemplateDescriptor
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	errs    map[string]error
	stale   map[string]bool // keys with a fetch in flight; true once Invalidate matched them

	flights singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	fetches  atomic.Int64
	failures atomic.Int64
}

type entry struct {
	template *catalog.TemplateDescriptor
	loadedAt time.Time
}

// Stats is a snapshot of loader counters.
type Stats struct {
	Hits     int64
	Misses   int64
	Fetches  int64
	Failures int64
	Entries  int
}

// New creates a Loader bound to fetch.
func New(fetch FetchFunc, opts Options) (*Loader, error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetch function cannot be nil")
	}
	if opts.TTL < 0 || opts.FetchTimeout < 0 {
		return nil, fmt.Errorf("ttl and fetch timeout must be >= 0")
	}

	l := &Loader{
		fetch:    fetch,
		ttl:      opts.TTL,
		timeout:  opts.FetchTimeout,
		fallback: opts.Fallback,
		logger:   opts.Logger,
		now:      opts.Now,
		entries:  make(map[string]entry),
		errs:     make(map[string]error),
		stale:    make(map[string]bool),
	}
	if l.ttl == 0 {
		l.ttl = DefaultTTL
	}
	if l.timeout == 0 {
		l.timeout = DefaultFetchTimeout
	}
	if l.fallback == nil {
		l.fallback = DefaultFallback()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	l.logger = l.logger.With("component", "loader")

	return l, nil
}

// DefaultFallback is the descriptor served when no fallback is configured: a
// single-stage, single-task generic briefing with zero duration.
func DefaultFallback() *catalog.TemplateDescriptor {
	return &catalog.TemplateDescriptor{
		ID:           DefaultFallbackID,
		Name:         "Generic project",
		Category:     "generic",
		Typology:     "generic",
		Keywords:     []string{},
		Dependencies: []string{},
		Incompatible: []string{},
		Stages: []catalog.StageTemplate{
			{
				ID:   "S1",
				Name: "Briefing",
				Tasks: []catalog.TaskTemplate{
					{ID: "T01", Name: "Project briefing", Role: "architect"},
				},
			},
		},
	}
}

// Fallback returns a copy of the descriptor served on fetch failure.
func (l *Loader) Fallback() *catalog.TemplateDescriptor {
	fb := *l.fallback
	fb.Fallback = true
	return &fb
}

// Get returns the template for key. It never fails: when the fetch fails the
// configured fallback descriptor is returned (marked Fallback=true) and the
// failure is recorded for LastError and Stats.
func (l *Loader) Get(ctx context.Context, key string) *catalog.TemplateDescriptor {
	t, err := l.Lookup(ctx, key)
	if err != nil {
		return l.Fallback()
	}
	return t
}

// Lookup is Get without the fallback: fetch failures are returned as *LoaderFailure.
// Cache, single-flight and failure recording behave exactly as in Get.
func (l *Loader) Lookup(ctx context.Context, key string) (*catalog.TemplateDescriptor, error) {
	if t, ok := l.cached(key); ok {
		l.hits.Add(1)
		return t, nil
	}
	l.misses.Add(1)

	ch := l.flights.DoChan(key, func() (interface{}, error) {
		return l.load(ctx, key)
	})

	select {
	case <-ctx.Done():
		return nil, &LoaderFailure{Key: key, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalog.TemplateDescriptor), nil
	}
}

// load runs inside the flight for key.
func (l *Loader) load(ctx context.Context, key string) (*catalog.TemplateDescriptor, error) {
	if t, ok := l.cached(key); ok {
		return t, nil
	}

	l.mu.Lock()
	l.stale[key] = false
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.stale, key)
		l.mu.Unlock()
	}()

	// Sharers must not fail because the first caller's context was cancelled.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	l.fetches.Add(1)
	t, err := l.fetch(fetchCtx, key)
	if err == nil && t == nil {
		err = fmt.Errorf("fetch returned no template")
	}
	if err != nil {
		l.failures.Add(1)
		failure := &LoaderFailure{Key: key, Err: err}
		l.mu.Lock()
		l.errs[key] = failure
		l.mu.Unlock()
		l.logger.Warn("template fetch failed, serving fallback",
			"event_type", "fetch_failed",
			"key", key,
			"fallback", l.fallback.ID,
			"error", err.Error())
		return nil, failure
	}

	l.mu.Lock()
	delete(l.errs, key)
	if !l.stale[key] {
		l.entries[key] = entry{template: t, loadedAt: l.now()}
	}
	l.mu.Unlock()

	return t, nil
}

// cached returns a fresh entry for key. Expired entries are removed.
func (l *Loader) cached(key string) (*catalog.TemplateDescriptor, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	if l.now().After(e.loadedAt.Add(l.ttl)) {
		delete(l.entries, key)
		return nil, false
	}
	return e.template, true
}

// Preload starts a background fetch of key and discards its outcome.
// A Get issued while the preload is in flight shares the same fetch.
func (l *Loader) Preload(key string) {
	go func() {
		_, _ = l.Lookup(context.Background(), key)
	}()
}

// PreloadAll fetches keys concurrently and waits for all of them. Failures are
// recorded as usual but not returned; only ctx cancellation is reported.
func (l *Loader) PreloadAll(ctx context.Context, keys []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, key := range keys {
		g.Go(func() error {
			_, _ = l.Lookup(gctx, key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Invalidate removes cache entries matching patternOrKey and returns how many
// were removed. Patterns use path.Match syntax ("CASA_*"); "*" clears everything.
// Matching fetches already in flight complete but do not repopulate the cache.
func (l *Loader) Invalidate(patternOrKey string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !strings.ContainsAny(patternOrKey, "*?[") {
		if _, ok := l.stale[patternOrKey]; ok {
			l.stale[patternOrKey] = true
		}
		if _, ok := l.entries[patternOrKey]; ok {
			delete(l.entries, patternOrKey)
			return 1
		}
		return 0
	}

	if _, err := path.Match(patternOrKey, ""); err != nil {
		l.logger.Warn("invalid invalidation pattern", "pattern", patternOrKey, "error", err.Error())
		return 0
	}

	for key := range l.stale {
		if matched, _ := path.Match(patternOrKey, key); matched {
			l.stale[key] = true
		}
	}

	removed := 0
	for key := range l.entries {
		if matched, _ := path.Match(patternOrKey, key); matched {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// LastError returns the most recent fetch failure for key, cleared by the next
// successful fetch.
func (l *Loader) LastError(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errs[key]
}

// Stats returns a snapshot of the loader counters.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	n := len(l.entries)
	l.mu.Unlock()

	return Stats{
		Hits:     l.hits.Load(),
		Misses:   l.misses.Load(),
		Fetches:  l.fetches.Load(),
		Failures: l.failures.Load(),
		Entries:  n,
	}
}
