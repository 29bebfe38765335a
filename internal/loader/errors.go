package loader

import (
	"errors"
	"fmt"
)

// LoaderFailure records a failed fetch. It is non-fatal: Get absorbs it and serves
// the fallback descriptor; Lookup returns it to callers that need to know.
type LoaderFailure struct {
	Key string
	Err error
}

func (e *LoaderFailure) Error() string {
	return fmt.Sprintf("failed to load template %s: %v", e.Key, e.Err)
}

func (e *LoaderFailure) Unwrap() error { return e.Err }

// IsLoaderFailure checks if an error is a LoaderFailure.
func IsLoaderFailure(err error) bool {
	var lf *LoaderFailure
	return errors.As(err, &lf)
}
