// Package fault defines the error taxonomy shared by the generation and
// retrieval pipeline. Handlers map these onto HTTP statuses; domain code
// classifies with errors.Is.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller mistakes (empty prompt/query). Never retried.
	ErrValidation = errors.New("validation error")

	// ErrProvider marks a failed generation or embedding provider call.
	// Absorbed by the fallback path where one exists, surfaced otherwise.
	ErrProvider = errors.New("provider error")

	// ErrIndexUnavailable marks a missing or unprovisioned vector index.
	// Degraded to an empty result set, never surfaced to callers.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrGeneration marks a generation attempt where no fallback succeeded.
	ErrGeneration = errors.New("generation error")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Provider wraps an underlying provider failure so callers can classify it.
func Provider(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProvider, op, err)
}

// Generation wraps a terminal generation failure.
func Generation(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrGeneration, op)
	}
	return fmt.Errorf("%w: %s: %w", ErrGeneration, op, err)
}
