package core

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Callers classify with errors.Is.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrProviderBadResponse = errors.New("provider bad response")
	ErrCircuitOpen         = errors.New("circuit breaker is open")
	ErrInvalidInput        = errors.New("invalid input")
)

// ProviderError attributes a failure to a named provider.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unavailable builds a ProviderError of kind ErrProviderUnavailable.
func Unavailable(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: ErrProviderUnavailable, Err: err}
}

// Timeout builds a ProviderError of kind ErrProviderTimeout.
func Timeout(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: ErrProviderTimeout, Err: err}
}

// BadResponse builds a ProviderError of kind ErrProviderBadResponse.
func BadResponse(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: ErrProviderBadResponse, Err: err}
}

// InvalidInput wraps ErrInvalidInput with a description.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// FromContext maps a transport error into the taxonomy, treating deadline
// expiry as a timeout and anything else as unavailability.
func FromContext(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(provider, err)
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return Unavailable(provider, err)
}

// Classify returns a low-cardinality label for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrProviderBadResponse):
		return "bad_response"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
