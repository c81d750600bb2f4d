package service

import "fmt"

// ValidationError reports a malformed request. No state is mutated.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// ForbiddenError reports that the actor lacks permission for the action.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// ConflictError reports an action that is semantically invalid given the
// current state, e.g. cancelling a terminal request.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// ProviderError wraps a failed signing provider call. During create it
// leaves the request pending and retry-eligible; during completion it leaves
// the completed status intact with the artifact fetch flagged for retry.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("signing provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
