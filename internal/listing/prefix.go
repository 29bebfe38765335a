package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Source reads and enumerates templates.
type Source interface {
	Lister
	Fetcher
}

// ResolveTemplateID resolves an exact template id or a unique case-insensitive
// prefix of one. Returns *TemplateNotFoundError when nothing matches and
// *AmbiguousError when several templates share the prefix.
func ResolveTemplateID(ctx context.Context, src Source, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("template ID cannot be empty")
	}

	templates, err := src.ListTemplates(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to search for template: %w", err)
	}

	var matches []string
	for _, t := range templates {
		if t.ID == ref {
			return t.ID, nil
		}
		if len(t.ID) >= len(ref) && strings.EqualFold(t.ID[:len(ref)], ref) {
			matches = append(matches, t.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", &TemplateNotFoundError{TemplateID: ref}
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", &AmbiguousError{Prefix: ref, Matches: matches}
	}
}

// AmbiguousError indicates multiple templates matched a prefix.
type AmbiguousError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous template prefix '%s' matches %d templates", e.Prefix, len(e.Matches))
}

// FormatAmbiguousError lists the matching ids (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("prefix '%s' matches %d templates:\n", err.Prefix, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}
	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the template."
	return msg
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var ae *AmbiguousError
	return errors.As(err, &ae)
}
