package pipeline

import "fmt"

// ValidationError rejects a request before any state is created. The field
// name lets API handlers point at the offending input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ContextError means the request referenced state that does not exist or is
// not usable, such as an unknown chain or an incomplete reference render.
type ContextError struct {
	Message string
	Cause   error
}

func (e *ContextError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("context resolution: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("context resolution: %s", e.Message)
}

func (e *ContextError) Unwrap() error {
	return e.Cause
}

// ModelInvocationError reports a backend call that failed permanently or
// exhausted its retries. Transient carries the adapter's classification
// through to callers.
type ModelInvocationError struct {
	RenderID  string
	Transient bool
	Cause     error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model invocation for render %s: %v", e.RenderID, e.Cause)
}

func (e *ModelInvocationError) Unwrap() error {
	return e.Cause
}

// MemoryMergeError wraps a failed memory extraction or merge. It is logged
// and never propagated; the completed render stands regardless.
type MemoryMergeError struct {
	ChainID string
	Cause   error
}

func (e *MemoryMergeError) Error() string {
	return fmt.Sprintf("memory update for chain %s: %v", e.ChainID, e.Cause)
}

func (e *MemoryMergeError) Unwrap() error {
	return e.Cause
}

// PersistenceError is raised when a terminal state could not be written after
// bounded retries. The render row stays in processing until the sweeper
// reconciles it.
type PersistenceError struct {
	RenderID string
	Cause    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist render %s: %v", e.RenderID, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
