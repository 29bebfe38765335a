package filter

import (
	"path/filepath"
	"strings"

	"github.com/dyluth/atelier/pkg/catalog"
)

// Criteria defines filtering criteria for catalog templates.
// All filters are ANDed together - a template must match ALL criteria to pass.
type Criteria struct {
	IDGlob   string // Glob pattern for the template id, empty = no filter
	Typology string // Exact match, empty = no filter
	Category string // Case-insensitive match, empty = no filter
	Keyword  string // Template must declare this keyword (case-insensitive), empty = no filter
}

// Matches returns true if the template matches all filter criteria.
// Empty criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(t *catalog.TemplateDescriptor) bool {
	if c.IDGlob != "" {
		matched, err := filepath.Match(c.IDGlob, t.ID)
		if err != nil || !matched {
			return false
		}
	}

	if c.Typology != "" && t.Typology != c.Typology {
		return false
	}

	if c.Category != "" && !strings.EqualFold(t.Category, c.Category) {
		return false
	}

	if c.Keyword != "" {
		found := false
		for _, k := range t.Keywords {
			if strings.EqualFold(k, c.Keyword) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.IDGlob != "" || c.Typology != "" || c.Category != "" || c.Keyword != ""
}

// Apply returns the templates that match, preserving order.
func (c *Criteria) Apply(templates []*catalog.TemplateDescriptor) []*catalog.TemplateDescriptor {
	if !c.HasFilters() {
		return templates
	}
	out := make([]*catalog.TemplateDescriptor, 0, len(templates))
	for _, t := range templates {
		if c.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
