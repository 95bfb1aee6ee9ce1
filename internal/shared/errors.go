// Package shared holds the error taxonomy and request-scoped helpers used
// across feature packages.
package shared

import "errors"

var (
	// ErrNotFound indicates the referenced resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation (username, email, name).
	ErrDuplicate = errors.New("duplicate resource")
	// ErrUnauthorized indicates a missing or unusable identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller lacks the required authority.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates a valid account that may not log in.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrConflict indicates the operation clashes with current resource state.
	ErrConflict = errors.New("conflict")
)

// SelfActionError marks an operation a principal attempted against its own
// account that would reduce its access below a safe minimum. Distinct from
// ErrForbidden: the actor is otherwise authorized.
type SelfActionError struct {
	Message string
}

func (e *SelfActionError) Error() string { return e.Message }

// NewSelfAction builds a SelfActionError with the given message.
func NewSelfAction(message string) *SelfActionError {
	return &SelfActionError{Message: message}
}

// ResourceInUseError rejects deletion of a role, permission or user that is
// still referenced elsewhere. Message carries the per-category breakdown.
type ResourceInUseError struct {
	Resource string
	Message  string
}

func (e *ResourceInUseError) Error() string { return e.Message }

// NewResourceInUse builds a ResourceInUseError for the named resource kind.
func NewResourceInUse(resource, message string) *ResourceInUseError {
	return &ResourceInUseError{Resource: resource, Message: message}
}
