package modelinvoke

import (
	"context"
	"errors"
	"fmt"

	"github.com/renderiq/render-server/internal/types"
)

// Request is the final, enhanced generation request handed to a backend.
// References carry raw uploaded bytes; ReferenceUrls point at already hosted
// outputs, such as an earlier render in the chain.
type Request struct {
	Prompt        string
	Quality       types.Quality
	AspectRatio   string
	References    []types.ReferencePayload
	ReferenceUrls []string
}

// Output is the backend's terminal result. Backends either return a hosted
// URL/key pair or the raw bytes for the caller to store.
type Output struct {
	Url      string
	Key      string
	Data     []byte
	MimeType string
}

// Adapter is the single slow, fallible external call in the pipeline. It
// carries no retry policy of its own; the orchestrator owns retries and the
// invocation deadline.
type Adapter interface {
	Invoke(ctx context.Context, req Request) (*Output, error)
}

// Error classifies a backend failure so callers can decide whether a retry
// is worthwhile.
type Error struct {
	Message   string
	Transient bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("model invocation: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("model invocation: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(message string, transient bool, cause error) *Error {
	return &Error{Message: message, Transient: transient, Cause: cause}
}

// IsTransient reports whether err carries a transient classification.
func IsTransient(err error) bool {
	var invErr *Error
	if errors.As(err, &invErr) {
		return invErr.Transient
	}
	return false
}
