package errors

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Failure taxonomy for the storefront core. Every call site converts one of
// these into a user-visible notice instead of letting it escape the flow.
var (
	ErrAuthRequired   = errors.New("authentication required")
	ErrSessionExpired = errors.New("session expired")
	ErrValidation     = errors.New("validation failed")
	ErrNetwork        = errors.New("network failure")
	ErrRateLimited    = errors.New("too many requests")
	ErrServer         = errors.New("server error")
	ErrBusy           = errors.New("operation already in progress")
	ErrClosed         = errors.New("consumer is closed")
)

// APIError carries the collaborator's response details. RedirectTo is the
// alternate-portal hint some 403 responses include.
type APIError struct {
	Err        error
	Message    string
	RedirectTo string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error with statusCode=%d", e.StatusCode)
	}
	return fmt.Sprintf("api error with statusCode=%d message=%s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func HandleError(err error, span trace.Span) {
	if err == nil {
		return
	}
	span.AddEvent(err.Error())
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}
