// Package errors defines the gateway's error taxonomy. Every error that can
// cross a component boundary (adapter, breaker, store, tool executor) is
// wrapped in a *GatewayError so the HTTP layer can map it to a stable status
// code and error_code without re-deriving the classification from scratch.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a kind of failure, independent of where it originated.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeOverloaded   Code = "OVERLOADED"
	CodeAuth         Code = "AUTH_ERROR"
	CodeInvalidReq   Code = "INVALID_REQUEST"
	CodeUpstream     Code = "UPSTREAM_ERROR"
	CodeTimeout      Code = "TIMEOUT"
	CodeCircuitOpen  Code = "CIRCUIT_OPEN"
	CodeToolExec     Code = "TOOL_EXECUTION_ERROR"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// GatewayError is the concrete error type carried through the request path.
type GatewayError struct {
	Code       Code
	Message    string
	Retryable  bool
	RetryAfter int // seconds; 0 if not applicable
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func newErr(code Code, retryable bool, msg string, cause error) *GatewayError {
	return &GatewayError{Code: code, Message: msg, Retryable: retryable, Err: cause}
}

func NewValidation(msg string) *GatewayError        { return newErr(CodeValidation, false, msg, nil) }
func NewNotFound(msg string) *GatewayError          { return newErr(CodeNotFound, false, msg, nil) }
func NewOverloaded(msg string, retryAfter int) *GatewayError {
	e := newErr(CodeOverloaded, true, msg, nil)
	e.RetryAfter = retryAfter
	return e
}
func NewRateLimited(retryAfter int) *GatewayError {
	e := newErr(CodeRateLimited, true, "rate limit exceeded", nil)
	e.RetryAfter = retryAfter
	return e
}
func NewAuth(msg string, cause error) *GatewayError        { return newErr(CodeAuth, false, msg, cause) }
func NewInvalidRequest(msg string, cause error) *GatewayError {
	return newErr(CodeInvalidReq, false, msg, cause)
}
func NewUpstream(msg string, cause error) *GatewayError    { return newErr(CodeUpstream, true, msg, cause) }
func NewTimeout(msg string, cause error) *GatewayError     { return newErr(CodeTimeout, true, msg, cause) }
func NewCircuitOpen(provider string) *GatewayError {
	return newErr(CodeCircuitOpen, true, fmt.Sprintf("circuit open for provider %q", provider), nil)
}
func NewToolExecution(msg string, cause error) *GatewayError {
	return newErr(CodeToolExec, false, msg, cause)
}
func NewInternal(msg string, cause error) *GatewayError {
	return newErr(CodeInternal, false, msg, cause)
}

// As-style helpers used by the fallback chain and the HTTP layer.

func CodeOf(err error) Code {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}

func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

// TriggersFallback reports whether err is one of the three kinds that are
// legitimate reasons to try the next provider in the chain.
func TriggersFallback(err error) bool {
	switch CodeOf(err) {
	case CodeCircuitOpen, CodeUpstream, CodeTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Code to the status the HTTP layer returns for it.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return 422
	case CodeNotFound:
		return 404
	case CodeRateLimited:
		return 429
	case CodeOverloaded:
		return 503
	case CodeAuth, CodeInvalidReq:
		return 400
	case CodeUpstream, CodeCircuitOpen:
		return 502
	case CodeTimeout:
		return 504
	default:
		return 500
	}
}

func RetryAfterOf(err error) int {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.RetryAfter
	}
	return 0
}
