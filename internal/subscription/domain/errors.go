package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation_error")
	ErrNotFound             = errors.New("not_found")
	ErrUpstream             = errors.New("upstream_error")
	ErrUnsupportedOperation = errors.New("unsupported_operation")
	ErrPartialCompletion    = errors.New("partial_completion")
	ErrAmbiguousPrincipal   = errors.New("ambiguous_principal")
)

// ValidationError carries a message meant for the caller.
type ValidationError struct {
	Message string
}

func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Message string
}

func NewNotFoundError(message string) error {
	return &NotFoundError{Message: message}
}

func (e *NotFoundError) Error() string { return e.Message }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UpstreamError wraps a failed call to the identity or subscription API.
// StatusCode is zero for transport failures.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	prefix := "Request failed"
	if e.Operation != "" {
		prefix = e.Operation + " failed"
	}
	if e.Err == nil {
		return prefix
	}
	return prefix + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

type UnsupportedOperationError struct {
	Method string
}

func (e *UnsupportedOperationError) Error() string { return "Unsupported HTTP method" }

func (e *UnsupportedOperationError) Is(target error) bool { return target == ErrUnsupportedOperation }

// PartialCompletionError reports that a flow changed upstream state before failing.
// Completed names the step that took effect and was not undone.
type PartialCompletionError struct {
	Action         Action
	ApplicationID  string
	Principal      Principal
	SubscriptionID string
	Completed      string
	Err            error
}

func (e *PartialCompletionError) Error() string {
	return fmt.Sprintf("%s partially completed for %s on application %s (%s): %v",
		e.Action, e.Principal, e.ApplicationID, e.Completed, e.Err)
}

func (e *PartialCompletionError) Unwrap() error { return e.Err }

func (e *PartialCompletionError) Is(target error) bool { return target == ErrPartialCompletion }

type AmbiguousPrincipalError struct {
	ApplicationID string
	Principal     Principal
	Matches       int
}

func (e *AmbiguousPrincipalError) Error() string {
	return fmt.Sprintf("found %d subscriptions for %s on application %s", e.Matches, e.Principal, e.ApplicationID)
}

func (e *AmbiguousPrincipalError) Is(target error) bool { return target == ErrAmbiguousPrincipal }

// Kind classifies err into one of the taxonomy labels, "internal_error" otherwise.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return ErrValidation.Error()
	case errors.Is(err, ErrUnsupportedOperation):
		return ErrUnsupportedOperation.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrAmbiguousPrincipal):
		return ErrAmbiguousPrincipal.Error()
	case errors.Is(err, ErrPartialCompletion):
		return ErrPartialCompletion.Error()
	case errors.Is(err, ErrUpstream):
		return ErrUpstream.Error()
	default:
		return "internal_error"
	}
}
