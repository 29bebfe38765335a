package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between templates and Redis hashes
//
// Scalar fields are stored as individual hash fields so they stay queryable from
// redis-cli; nested structures (keywords, stages, rules) are JSON-encoded into
// single fields.

// TemplateToHash converts a TemplateDescriptor to a Redis hash format.
func TemplateToHash(t *TemplateDescriptor) (map[string]interface{}, error) {
	keywordsJSON, err := json.Marshal(nonNil(t.Keywords))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keywords: %w", err)
	}

	dependenciesJSON, err := json.Marshal(nonNil(t.Dependencies))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dependencies: %w", err)
	}

	incompatibleJSON, err := json.Marshal(nonNil(t.Incompatible))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal incompatible: %w", err)
	}

	multipliersJSON, err := json.Marshal(t.Multipliers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal multipliers: %w", err)
	}

	stagesJSON, err := json.Marshal(t.Stages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stages: %w", err)
	}

	hash := map[string]interface{}{
		"id":            t.ID,
		"name":          t.Name,
		"category":      t.Category,
		"typology":      t.Typology,
		"keywords":      string(keywordsJSON),
		"base_duration": strconv.FormatFloat(t.BaseDuration, 'f', -1, 64),
		"priority":      t.Priority,
		"multipliers":   string(multipliersJSON),
		"dependencies":  string(dependenciesJSON),
		"incompatible":  string(incompatibleJSON),
		"stages":        string(stagesJSON),
		"activation":    "",
	}

	if t.Activation != nil {
		activationJSON, err := json.Marshal(t.Activation)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal activation: %w", err)
		}
		hash["activation"] = string(activationJSON)
	}

	return hash, nil
}

// HashToTemplate converts a Redis hash to a TemplateDescriptor.
// JSON fields are decoded back to Go types.
func HashToTemplate(hash map[string]string) (*TemplateDescriptor, error) {
	baseDuration, err := strconv.ParseFloat(hash["base_duration"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid base_duration field: %w", err)
	}

	priority := 0
	if raw := hash["priority"]; raw != "" {
		priority, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid priority field: %w", err)
		}
	}

	t := &TemplateDescriptor{
		ID:           hash["id"],
		Name:         hash["name"],
		Category:     hash["category"],
		Typology:     hash["typology"],
		BaseDuration: baseDuration,
		Priority:     priority,
	}

	if err := decodeField(hash, "keywords", &t.Keywords); err != nil {
		return nil, err
	}
	if err := decodeField(hash, "dependencies", &t.Dependencies); err != nil {
		return nil, err
	}
	if err := decodeField(hash, "incompatible", &t.Incompatible); err != nil {
		return nil, err
	}
	if err := decodeField(hash, "multipliers", &t.Multipliers); err != nil {
		return nil, err
	}
	if err := decodeField(hash, "stages", &t.Stages); err != nil {
		return nil, err
	}
	if raw := hash["activation"]; raw != "" {
		var rule Rule
		if err := json.Unmarshal([]byte(raw), &rule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal activation: %w", err)
		}
		t.Activation = &rule
	}

	// Ensure we have empty slices instead of nil for consistency
	t.Keywords = nonNil(t.Keywords)
	t.Dependencies = nonNil(t.Dependencies)
	t.Incompatible = nonNil(t.Incompatible)

	return t, nil
}

func decodeField(hash map[string]string, field string, dst interface{}) error {
	raw := hash[field]
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", field, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
