package domain

import "fmt"

// DuplicateError is returned by repositories when a unique constraint
// rejected an insert. Callers re-read and reuse the existing record.
type DuplicateError struct {
	Collection string
	Err        error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate record in %s: %v", e.Collection, e.Err)
}

func (e *DuplicateError) Unwrap() error {
	return e.Err
}
