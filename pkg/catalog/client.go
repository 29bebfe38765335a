package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides tenant-scoped Redis operations for the template catalog.
// All keys and channels are automatically namespaced with the tenant name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb    *redis.Client
	tenant string
}

// NewClient creates a new catalog client for the specified tenant.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - tenant: firm identifier used as key namespace (must not be empty)
//
// Returns an error if tenant is empty.
func NewClient(redisOpts *redis.Options, tenant string) (*Client, error) {
	if tenant == "" {
		return nil, fmt.Errorf("tenant name cannot be empty")
	}

	return &Client{
		rdb:    redis.NewClient(redisOpts),
		tenant: tenant,
	}, nil
}

// Tenant returns the namespace this client operates in.
func (c *Client) Tenant() string {
	return c.tenant
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PutTemplate validates a template, writes it as a Redis hash, registers it in its
// typology index and publishes an upsert event.
//
// Re-putting a template keeps its original registration position. If the typology
// changed, the template is moved to the new index.
func (c *Client) PutTemplate(ctx context.Context, t *TemplateDescriptor) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	hash, err := TemplateToHash(t)
	if err != nil {
		return fmt.Errorf("failed to serialize template: %w", err)
	}

	key := TemplateKey(c.tenant, t.ID)

	previousTypology, err := c.rdb.HGet(ctx, key, "typology").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read existing template: %w", err)
	}

	seq, err := c.rdb.Incr(ctx, SequenceKey(c.tenant)).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate registration sequence: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, hash)
		if previousTypology != "" && previousTypology != t.Typology {
			pipe.ZRem(ctx, TypologyKey(c.tenant, previousTypology), t.ID)
		}
		pipe.ZAddNX(ctx, TypologyKey(c.tenant, t.Typology), redis.Z{Score: float64(seq), Member: t.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write template to Redis: %w", err)
	}

	return c.publish(ctx, Event{Type: EventUpsert, TemplateID: t.ID})
}

// GetTemplate retrieves a template by ID.
// Returns (nil, redis.Nil) if the template doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetTemplate(ctx context.Context, templateID string) (*TemplateDescriptor, error) {
	hashData, err := c.rdb.HGetAll(ctx, TemplateKey(c.tenant, templateID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read template from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	t, err := HashToTemplate(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize template %s: %w", templateID, err)
	}

	return t, nil
}

// Fetch has the shape of a loader fetch function. A missing template is reported
// as a wrapped redis.Nil.
func (c *Client) Fetch(ctx context.Context, templateID string) (*TemplateDescriptor, error) {
	t, err := c.GetTemplate(ctx, templateID)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("template %s not found in catalog: %w", templateID, err)
		}
		return nil, err
	}
	return t, nil
}

// TemplateExists checks if a template exists without fetching it.
func (c *Client) TemplateExists(ctx context.Context, templateID string) (bool, error) {
	exists, err := c.rdb.Exists(ctx, TemplateKey(c.tenant, templateID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check template existence: %w", err)
	}
	return exists > 0, nil
}

// TemplateIDs returns the template ids registered under typology in registration order.
// Returns an empty slice for unknown typologies.
func (c *Client) TemplateIDs(ctx context.Context, typology string) ([]string, error) {
	ids, err := c.rdb.ZRange(ctx, TypologyKey(c.tenant, typology), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read typology index: %w", err)
	}
	return ids, nil
}

// ListTemplates scans every template of the tenant. Results are sorted by ID.
func (c *Client) ListTemplates(ctx context.Context) ([]*TemplateDescriptor, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, TemplateKeyPattern(c.tenant), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan templates: %w", err)
	}

	templates := make([]*TemplateDescriptor, 0, len(keys))
	for _, key := range keys {
		hashData, err := c.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", key, err)
		}
		if len(hashData) == 0 {
			continue // deleted between SCAN and HGETALL
		}
		t, err := HashToTemplate(hashData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize %s: %w", key, err)
		}
		templates = append(templates, t)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

// DeleteTemplate removes a template and its index entry and publishes a delete event.
// Deleting a missing template is not an error.
func (c *Client) DeleteTemplate(ctx context.Context, templateID string) error {
	key := TemplateKey(c.tenant, templateID)

	typology, err := c.rdb.HGet(ctx, key, "typology").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to read template: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, TypologyKey(c.tenant, typology), templateID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	return c.publish(ctx, Event{Type: EventDelete, TemplateID: templateID})
}

// PublishReset tells subscribers to drop every cached template.
func (c *Client) PublishReset(ctx context.Context) error {
	return c.publish(ctx, Event{Type: EventReset})
}

func (c *Client) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog event: %w", err)
	}

	if err := c.rdb.Publish(ctx, CatalogEventsChannel(c.tenant), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish catalog event: %w", err)
	}
	return nil
}

// EventType identifies what changed in the catalog.
type EventType string

const (
	EventUpsert EventType = "upsert"
	EventDelete EventType = "delete"
	EventReset  EventType = "reset"
)

// Event is published on the catalog events channel after every write.
type Event struct {
	Type       EventType `json:"type"`
	TemplateID string    `json:"template_id,omitempty"`
}

// Subscription represents an active Pub/Sub subscription to catalog events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of catalog events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeCatalogEvents subscribes to catalog change events for this tenant.
// The subscription is confirmed before returning, so events published after this
// call returns are delivered.
//
// Redis Pub/Sub is at-most-once: a slow subscriber may miss events, so consumers
// must tolerate gaps (the loader's TTL bounds staleness anyway).
func (c *Client) SubscribeCatalogEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, CatalogEventsChannel(c.tenant))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to catalog events: %w", err)
	}

	eventsChan := make(chan Event, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal catalog event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// ErrNotFound is wrapped by catalog stores that are not backed by Redis when a
// template does not exist.
var ErrNotFound = errors.New("template not found")

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil)
// or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil) || errors.Is(err, ErrNotFound)
}
