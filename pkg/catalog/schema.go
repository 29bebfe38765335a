package catalog

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by tenant name so that
// several firms can share one Redis server without seeing each other's catalog.
//
// Key pattern: atelier:{tenant}:{entity}:{id}
// Channel pattern: atelier:{tenant}:{event_type}_events

// TemplateKey returns the Redis key for a template hash.
// Pattern: atelier:{tenant}:template:{template_id}
func TemplateKey(tenant, templateID string) string {
	return fmt.Sprintf("atelier:%s:template:%s", tenant, templateID)
}

// TemplateKeyPattern returns the SCAN pattern matching every template of a tenant.
func TemplateKeyPattern(tenant string) string {
	return fmt.Sprintf("atelier:%s:template:*", tenant)
}

// TypologyKey returns the Redis key for a typology index ZSET.
// Members are template ids scored by registration sequence, so iteration order
// is the order templates were first registered.
// Pattern: atelier:{tenant}:typology:{typology}
func TypologyKey(tenant, typology string) string {
	return fmt.Sprintf("atelier:%s:typology:%s", tenant, typology)
}

// SequenceKey returns the Redis key of the registration counter.
// Pattern: atelier:{tenant}:template_seq
func SequenceKey(tenant string) string {
	return fmt.Sprintf("atelier:%s:template_seq", tenant)
}

// CatalogEventsChannel returns the Pub/Sub channel name for catalog change events.
// Pattern: atelier:{tenant}:catalog_events
func CatalogEventsChannel(tenant string) string {
	return fmt.Sprintf("atelier:%s:catalog_events", tenant)
}
