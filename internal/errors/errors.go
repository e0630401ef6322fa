// Package errors provides the coded error type used across the service.
// Every failure a mutating operation can raise carries one of the codes
// below; transport layers map codes to HTTP statuses and nothing else
// inspects error strings.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrCode classifies an error for callers and transports.
type ErrCode string

const (
	ErrCodeNotFound     ErrCode = "not_found"
	ErrCodeUnauthorized ErrCode = "unauthorized"
	ErrCodeInvalidState ErrCode = "invalid_state"
	ErrCodeValidation   ErrCode = "validation"
	ErrCodeCredential   ErrCode = "credential"
	ErrCodeInternal     ErrCode = "internal"
)

// Error is a coded error. It wraps an optional cause.
type Error struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code ErrCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code ErrCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates a cause with a code and message.
func Wrap(err error, code ErrCode, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %s not found", resource, id)
}

// Unauthorized reports a cross-tenant or wrong-owner access attempt.
func Unauthorized(message string) *Error {
	return New(ErrCodeUnauthorized, message)
}

// InvalidState reports an illegal transition, including any replay of an
// already-terminal decision.
func InvalidState(message string) *Error {
	return New(ErrCodeInvalidState, message)
}

// InvalidInput reports a failed validation on a named field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeValidation, "%s: %s", field, message)
}

// Credential reports an OTP failure. The message is deliberately generic:
// responses never reveal whether the code was wrong, expired or locked.
func Credential() *Error {
	return New(ErrCodeCredential, "one-time code could not be verified")
}

// Code extracts the ErrCode from err, or ErrCodeInternal for uncoded errors.
func Code(err error) ErrCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrCode) bool {
	return Code(err) == code
}
