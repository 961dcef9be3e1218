package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

// Error kinds.
const (
	KindValidation             ErrorKind = "validation"
	KindNotFound               ErrorKind = "not_found"
	KindMissingCredential      ErrorKind = "missing_credential"
	KindExternalServiceFailure ErrorKind = "external_service_failure"
	KindConflict               ErrorKind = "conflict"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrMissingCredential      = &Error{Kind: KindMissingCredential}
	ErrExternalServiceFailure = &Error{Kind: KindExternalServiceFailure}
	ErrConflict               = &Error{Kind: KindConflict}
)

// Error is a classified failure. Service is set for missing credential and
// external service failures.
type Error struct {
	Kind    ErrorKind
	Message string
	Service string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Validationf returns a validation error.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a not-found error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// MissingCredential reports that service has no stored credential for the session.
func MissingCredential(service string) error {
	return &Error{
		Kind:    KindMissingCredential,
		Service: service,
		Message: fmt.Sprintf("credentials for %s not found", service),
	}
}

// ExternalFailure wraps a collaborator failure.
func ExternalFailure(service string, err error) error {
	return &Error{
		Kind:    KindExternalServiceFailure,
		Service: service,
		Message: fmt.Sprintf("%s request failed", service),
		Err:     err,
	}
}

// Conflictf returns a conflict error.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ServiceOf returns the service attached to a classified error.
func ServiceOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Service
	}
	return ""
}
