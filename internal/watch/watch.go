// Package watch keeps template caches in step with catalog change events.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dyluth/atelier/pkg/catalog"
)

// Invalidator drops cached templates by key or glob pattern.
type Invalidator interface {
	Invalidate(patternOrKey string) int
}

// Handler observes each event after the cache was invalidated for it.
type Handler func(ev catalog.Event, removed int)

// InvalidateOnChange consumes sub until ctx ends or the subscription closes.
// Each upsert or delete invalidates its template; a reset invalidates everything.
// Subscription errors are logged and skipped.
func InvalidateOnChange(ctx context.Context, sub *catalog.Subscription, inv Invalidator, handlers ...Handler) error {
	return consume(ctx, sub.Events(), sub.Errors(), inv, handlers)
}

// consume drains events until the events channel closes. The errors channel
// may close first while events are still buffered.
func consume(ctx context.Context, events <-chan catalog.Event, errs <-chan error, inv Invalidator, handlers []Handler) error {
	logger := slog.Default().With("component", "watch")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}

			var removed int
			switch ev.Type {
			case catalog.EventReset:
				removed = inv.Invalidate("*")
			case catalog.EventUpsert, catalog.EventDelete:
				if ev.TemplateID == "" {
					logger.Warn("catalog event without template id", "type", string(ev.Type))
					continue
				}
				removed = inv.Invalidate(ev.TemplateID)
			default:
				logger.Warn("unknown catalog event", "type", string(ev.Type))
				continue
			}

			logger.Debug("cache invalidated",
				"event_type", "cache_invalidated",
				"type", string(ev.Type),
				"template_id", ev.TemplateID,
				"removed", removed)
			for _, h := range handlers {
				h(ev, removed)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("catalog subscription error", "error", err.Error())
		}
	}
}

// TemplateGetter reads a single template from a catalog store.
type TemplateGetter interface {
	GetTemplate(ctx context.Context, templateID string) (*catalog.TemplateDescriptor, error)
}

// WaitForTemplate polls until templateID exists in the catalog.
// Returns the template or an error if timeout occurs.
// Polls every 200ms for the specified timeout duration.
func WaitForTemplate(ctx context.Context, client TemplateGetter, templateID string, timeout time.Duration) (*catalog.TemplateDescriptor, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for template %s after %v", templateID, timeout)

		case <-ticker.C:
			t, err := client.GetTemplate(ctx, templateID)
			if err != nil {
				if catalog.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to query for template: %w", err)
			}
			return t, nil
		}
	}
}

// FormatEvent renders a catalog event as one human-readable line.
func FormatEvent(ev catalog.Event) string {
	switch ev.Type {
	case catalog.EventUpsert:
		return fmt.Sprintf("📝 Template Upserted: %s", ev.TemplateID)
	case catalog.EventDelete:
		return fmt.Sprintf("🗑️  Template Deleted: %s", ev.TemplateID)
	case catalog.EventReset:
		return "🔄 Catalog Reset: all cached templates dropped"
	default:
		return fmt.Sprintf("❓ Unknown event %q: %s", ev.Type, ev.TemplateID)
	}
}
