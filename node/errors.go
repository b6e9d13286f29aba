package node

import (
	"errors"
	"fmt"
	"time"
)

// Build-time errors. None of these can be returned once a run has started.
var (
	// ErrGraphIncomplete is returned when a declared dependency is not a
	// registered node of the same graph.
	ErrGraphIncomplete = errors.New("graph incomplete")

	// ErrNodeUnregistered is returned when a node kind is unknown to the
	// registry or its factory failed.
	ErrNodeUnregistered = errors.New("node unregistered")

	// ErrNodeDuplicate is returned when a node is added to one graph twice, or
	// a kind is registered twice.
	ErrNodeDuplicate = errors.New("duplicate node")

	// ErrGraphCycle is returned when the declared dependencies form a cycle.
	ErrGraphCycle = errors.New("circular dependency")

	// ErrDependencyOrder is returned by ordered-wave graphs when a node depends
	// on a node in the same or a later wave.
	ErrDependencyOrder = errors.New("dependency not declared in an earlier wave")

	// ErrMixedStyles is returned when explicit-dependency and ordered-wave
	// declarations are mixed in one graph.
	ErrMixedStyles = errors.New("mixed declaration styles")
)

// ErrNodeTimeout matches every *TimeoutError via errors.Is.
var ErrNodeTimeout = errors.New("node timed out")

// FailureKind classifies a node failure.
type FailureKind int

const (
	// KindUnknown is any error that is not a business failure.
	KindUnknown FailureKind = iota
	// KindBusiness is a domain-level rejection raised with Fail.
	KindBusiness
	// KindTimeout is a node exceeding its policy timeout.
	KindTimeout
	// KindCanceled is the caller cancelling the run's context.
	KindCanceled
)

// String returns a human-readable representation of the FailureKind.
func (k FailureKind) String() string {
	switch k {
	case KindBusiness:
		return "business"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// BusinessError is a domain-level rejection raised by node logic. It carries a
// caller-meaningful code and message and survives every failure policy intact.
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

// Fail creates a BusinessError.
func Fail(code, format string, args ...any) *BusinessError {
	return &BusinessError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("business failure %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("business failure %s: %s", e.Code, e.Message)
}

// Unwrap returns the optional underlying cause.
func (e *BusinessError) Unwrap() error {
	return e.Err
}

// Wrap attaches an underlying cause and returns e.
func (e *BusinessError) Wrap(err error) *BusinessError {
	e.Err = err
	return e
}

// TimeoutError reports a node exceeding its timeout.
type TimeoutError struct {
	Node    ID
	Timeout time.Duration
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node %s timed out after %s", e.Node, e.Timeout)
}

// Is makes errors.Is(err, ErrNodeTimeout) work.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrNodeTimeout
}

// RunError is the terminal error of a run. It is returned when an Interrupt
// node fails, when a Retry node exhausts its bound, or when the caller cancels
// the run.
type RunError struct {
	Graph    string
	Node     ID
	Kind     FailureKind
	Attempts int
	Err      error
}

// Error implements error.
func (e *RunError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("graph %s: run aborted (%s): %v", e.Graph, e.Kind, e.Err)
	}
	return fmt.Sprintf("graph %s: node %s failed (%s) after %d attempt(s): %v",
		e.Graph, e.Node, e.Kind, e.Attempts, e.Err)
}

// Unwrap preserves the cause chain.
func (e *RunError) Unwrap() error {
	return e.Err
}

// AsBusiness returns the BusinessError in err's chain, if any.
func AsBusiness(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsBusinessFailure reports whether err carries a business failure.
func IsBusinessFailure(err error) bool {
	_, ok := AsBusiness(err)
	return ok
}

// IsUnknownFailure reports whether err is a failure that is not a business
// failure. Timeouts and cancellations are unknown failures from the caller's
// point of view.
func IsUnknownFailure(err error) bool {
	return err != nil && !IsBusinessFailure(err)
}

// Classify returns the FailureKind for an error returned by node code.
func Classify(err error) FailureKind {
	switch {
	case IsBusinessFailure(err):
		return KindBusiness
	case errors.Is(err, ErrNodeTimeout):
		return KindTimeout
	default:
		return KindUnknown
	}
}
