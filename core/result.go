// Package core holds the result and error types shared by every provider,
// chain and engine component.
package core

import "fmt"

// Status is the discriminator of a Result.
type Status int

const (
	StatusSuccess Status = iota
	StatusDegraded
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusDegraded:
		return "degraded"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one provider call. A degraded result carries a
// usable value plus the reason it is not first-class; a failure carries only
// the error.
type Result[T any] struct {
	Status Status
	Value  T
	Reason string
	Err    error
}

// Success wraps a first-class value.
func Success[T any](v T) Result[T] {
	return Result[T]{Status: StatusSuccess, Value: v}
}

// Degraded wraps a usable value that was produced with reduced fidelity.
func Degraded[T any](v T, reason string) Result[T] {
	return Result[T]{Status: StatusDegraded, Value: v, Reason: reason}
}

// Failure wraps an error. A nil error is replaced with ErrProviderUnavailable
// so a failure is never mistaken for success.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = ErrProviderUnavailable
	}
	return Result[T]{Status: StatusFailure, Err: err}
}

// OK reports whether the result carries a usable value.
func (r Result[T]) OK() bool {
	return r.Status != StatusFailure
}

// Unwrap returns the value, or the error for failures.
func (r Result[T]) Unwrap() (T, error) {
	if r.Status == StatusFailure {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}

// ValueOr returns the value or def when the result is a failure.
func (r Result[T]) ValueOr(def T) T {
	if r.Status == StatusFailure {
		return def
	}
	return r.Value
}
