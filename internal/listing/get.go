package listing

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dyluth/atelier/pkg/catalog"
)

// Fetcher reads a single template by ID.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*catalog.TemplateDescriptor, error)
}

// GetTemplate retrieves a single template by ID and writes it as pretty-printed JSON to w.
// A missing template is reported as *TemplateNotFoundError.
func GetTemplate(ctx context.Context, src Fetcher, templateID string, w io.Writer) error {
	if templateID == "" {
		return fmt.Errorf("template ID cannot be empty")
	}

	t, err := src.Fetch(ctx, templateID)
	if err != nil {
		if catalog.IsNotFound(err) {
			return &TemplateNotFoundError{TemplateID: templateID}
		}
		return fmt.Errorf("failed to fetch template: %w", err)
	}

	if err := FormatSingleJSON(w, t); err != nil {
		return fmt.Errorf("failed to format template: %w", err)
	}

	return nil
}

// TemplateNotFoundError represents a specific "template not found" error.
// This allows callers to distinguish not-found errors from other failures.
type TemplateNotFoundError struct {
	TemplateID string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template with ID '%s' not found", e.TemplateID)
}

// IsNotFound returns true if the error is a TemplateNotFoundError.
func IsNotFound(err error) bool {
	var nf *TemplateNotFoundError
	return errors.As(err, &nf)
}
