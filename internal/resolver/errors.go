package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError indicates a template named as a seed or dependency does not exist
// in the catalog.
type NotFoundError struct {
	TemplateID string
	RequiredBy string // Empty for seeds
	Err        error
}

func (e *NotFoundError) Error() string {
	if e.RequiredBy == "" {
		return fmt.Sprintf("template not found: %s", e.TemplateID)
	}
	return fmt.Sprintf("template %s required by %s not found", e.TemplateID, e.RequiredBy)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// CyclicDependencyError indicates a dependency cycle. Chain lists the cycle
// starting and ending with the same id, e.g. [A B A].
type CyclicDependencyError struct {
	Kind  string // "template" or "task"
	Chain []string
}

func (e *CyclicDependencyError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "template"
	}
	return fmt.Sprintf("cyclic %s dependency: %s", kind, strings.Join(e.Chain, " -> "))
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsCyclicDependencyError checks if an error is a CyclicDependencyError.
func IsCyclicDependencyError(err error) bool {
	var ce *CyclicDependencyError
	return errors.As(err, &ce)
}
