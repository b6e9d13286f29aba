package engine

import (
	"errors"

	"github.com/nomis52/nodegraph/node"
)

const (
	// CodeOK is the result code of a successful run.
	CodeOK = "OK"
	// CodeInternal is the result code of an unknown failure.
	CodeInternal = "INTERNAL"
	// CodeCanceled is the result code of a run cancelled by its caller.
	CodeCanceled = "CANCELED"
)

// Result is the uniform envelope returned to callers of Run. Callers branch
// on OK, IsBusinessFailure and IsUnknownFailure, never on which node failed.
type Result struct {
	// Code is CodeOK, the code of a business failure, CodeCanceled or
	// CodeInternal.
	Code string
	// Message describes the failure. Empty on success.
	Message string
	// Payload is the run's payload. Only set on success.
	Payload any
	// Err is the underlying error, kept for diagnostics.
	Err error
}

// NewResult builds the envelope for a finished run.
func NewResult(err error, payload any) Result {
	if err == nil {
		return Result{Code: CodeOK, Payload: payload}
	}
	if be, ok := node.AsBusiness(err); ok {
		return Result{Code: be.Code, Message: be.Message, Err: err}
	}
	var re *node.RunError
	if errors.As(err, &re) && re.Kind == node.KindCanceled {
		return Result{Code: CodeCanceled, Message: err.Error(), Err: err}
	}
	return Result{Code: CodeInternal, Message: err.Error(), Err: err}
}

// OK reports whether the run succeeded.
func (r Result) OK() bool {
	return r.Err == nil && r.Code == CodeOK
}

// IsBusinessFailure reports whether the run ended with a business failure.
func (r Result) IsBusinessFailure() bool {
	return node.IsBusinessFailure(r.Err)
}

// IsUnknownFailure reports whether the run ended with any other failure.
func (r Result) IsUnknownFailure() bool {
	return node.IsUnknownFailure(r.Err)
}
