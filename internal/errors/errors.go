package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer of prepgen. Callers match them with
// errors.Is; the CLI and MCP surfaces map them to user-facing messages.
var (
	// ErrUnauthenticated means no usable bearer credential is available.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrSessionExpired is returned when the backend rejects the credential
	// with HTTP 401. It matches ErrUnauthenticated as well.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrUnauthenticated)

	// ErrServiceUnavailable means the AI backend failed its liveness probe.
	ErrServiceUnavailable = errors.New("AI service is currently offline")

	// ErrValidation covers input rejected locally before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrNetwork means the request never produced an HTTP response.
	ErrNetwork = errors.New("network failure")

	// ErrEmptyQuiz is returned when a quiz is started with no questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")

	// ErrInvalidPhase is returned when a quiz operation is not valid in the
	// session's current phase.
	ErrInvalidPhase = errors.New("operation not valid in current quiz phase")

	// ErrNoActiveContext is returned when chatting without a document context.
	ErrNoActiveContext = errors.New("no document selected for chat")

	// ErrStaleResponse means a response arrived for a context or quiz that has
	// since been replaced; it was not applied.
	ErrStaleResponse = errors.New("response arrived for a replaced session")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Validationf wraps ErrValidation with a formatted, user-readable reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
