// Package listing renders catalog templates, detections, plans and impact
// reports for the command line.
package listing

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/atelier/internal/filter"
	"github.com/dyluth/atelier/pkg/catalog"
)

// OutputFormat specifies how to format list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated keywords
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete templates as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (must be 'default' or 'jsonl')", s)
	}
}

// Lister enumerates every template of a catalog store, sorted by ID.
type Lister interface {
	ListTemplates(ctx context.Context) ([]*catalog.TemplateDescriptor, error)
}

// ListTemplates retrieves all templates from src, applies criteria and writes
// them to w. Templates are sorted by priority, then ID, for stable output.
func ListTemplates(ctx context.Context, src Lister, format OutputFormat, criteria *filter.Criteria, w io.Writer) error {
	templates, err := src.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if criteria != nil {
		templates = criteria.Apply(templates)
	}
	sortByPriority(templates)

	switch format {
	case OutputFormatDefault:
		FormatTable(w, templates)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, templates); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
