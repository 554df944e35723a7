package errors

import (
	"errors"
	"fmt"
)

var (
	ErrShouldBeAuthenticated = errors.New("should be authenticated")
	ErrAuthorizationFailed   = errors.New("authorization failed")
	ErrNotFound              = errors.New("record not found")
	ErrInvalidState          = errors.New("invalid or expired state parameter")
	ErrModuleNotFound        = errors.New("module not found")
	ErrModuleNotConfigured   = errors.New("module is not configured")
)

// AuthError is raised when an authentication precondition is unmet or the
// provider rejected the authorization. It wraps one of the sentinels above.
type AuthError struct {
	Module string
	Reason error
	Err    error
}

// NewAuthError creates an AuthError for the module with the given reason
// sentinel and optional cause.
func NewAuthError(module string, reason, cause error) *AuthError {
	return &AuthError{Module: module, Reason: reason, Err: cause}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Module, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Module, e.Reason)
}

func (e *AuthError) Is(target error) bool {
	return target == e.Reason
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ConflictKind names the record type that was found duplicated.
type ConflictKind string

const (
	ConflictEntity     ConflictKind = "entity"
	ConflictCredential ConflictKind = "credential"
)

// ConflictError reports more than one record where at most one may exist.
type ConflictError struct {
	Kind       ConflictKind
	Module     string
	UserID     string
	ExternalID string
	Count      int
}

func (e *ConflictError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("multiple %s records (%d) found for user %s in module %s with external ID %s",
			e.Kind, e.Count, e.UserID, e.Module, e.ExternalID)
	}
	return fmt.Sprintf("multiple %s records (%d) found for user %s in module %s", e.Kind, e.Count, e.UserID, e.Module)
}
