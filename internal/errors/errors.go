// Package errors defines the coded errors shared by the session registry,
// the credential backends and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the coarse category of an AppError. HTTP status and metric labels derive from it.
type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "not_found"
	ErrCodeConflict      ErrorCode = "conflict"
	ErrCodeValidation    ErrorCode = "validation"
	ErrCodeForeignKey    ErrorCode = "foreign_key"
	ErrCodeInternal      ErrorCode = "internal"
	ErrCodeTimeout       ErrorCode = "timeout"
	ErrCodeCanceled      ErrorCode = "canceled"
	ErrCodeConfiguration ErrorCode = "configuration"
	// ErrCodeUnavailable means a backing store could not be reached. Auth paths fail closed on it.
	ErrCodeUnavailable ErrorCode = "unavailable"

	// ErrCodeInvalidCredential covers unknown accounts, bad passwords and rejected tokens alike.
	ErrCodeInvalidCredential ErrorCode = "invalid_credential"
	ErrCodeAccountLocked     ErrorCode = "account_locked"
	ErrCodeTooManyAttempts   ErrorCode = "too_many_attempts"
	// ErrCodeSessionNotFound covers both unknown and expired session ids.
	ErrCodeSessionNotFound ErrorCode = "session_not_found"
	ErrCodeTooManySessions ErrorCode = "too_many_sessions"
	ErrCodeReconnectDenied ErrorCode = "reconnect_denied"
)

// Reason gives the fine-grained cause behind a coarse auth error code.
// Reasons are for logs and tests; they are never rendered to clients.
type Reason string

const (
	ReasonUnknownAccount     Reason = "unknown_account"
	ReasonBadCredential      Reason = "bad_credential"
	ReasonMissingCredential  Reason = "missing_credential"
	ReasonMalformedToken     Reason = "malformed_token"
	ReasonExpiredToken       Reason = "expired_token"
	ReasonBadSignature       Reason = "bad_signature"
	ReasonSubjectMismatch    Reason = "subject_mismatch"
	ReasonBypassNotPermitted Reason = "bypass_not_permitted"
	ReasonClientMismatch     Reason = "client_mismatch"
)

// AppError is a coded error. Message is safe to show to clients; Cause and Reason are not.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input for validation and conflict errors.
	Field  string
	Reason Reason
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func newErr(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NotFound reports a missing record.
func NotFound(message string) *AppError { return newErr(ErrCodeNotFound, message) }

// Conflict reports a clash with existing state.
func Conflict(message string) *AppError { return newErr(ErrCodeConflict, message) }

// Conflictf is Conflict with a formatted message.
func Conflictf(format string, args ...any) *AppError {
	return newErr(ErrCodeConflict, fmt.Sprintf(format, args...))
}

// ValidationField reports invalid input for one named field.
func ValidationField(field, message string) *AppError {
	e := newErr(ErrCodeValidation, message)
	e.Field = field
	return e
}

// Internal reports a broken invariant.
func Internal(message string) *AppError { return newErr(ErrCodeInternal, message) }

// Configuration reports a component that could not be built from its settings.
func Configuration(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: message, Cause: cause}
}

// Unavailable reports an unreachable backing store.
func Unavailable(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeUnavailable, Message: message, Cause: cause}
}

// InvalidCredential rejects a login. The message is identical for every reason
// so responses never reveal whether the account exists.
func InvalidCredential(reason Reason, cause error) *AppError {
	return &AppError{Code: ErrCodeInvalidCredential, Message: "invalid credentials", Cause: cause, Reason: reason}
}

// AccountLocked rejects a login for an administratively locked account.
func AccountLocked() *AppError { return newErr(ErrCodeAccountLocked, "account locked") }

// TooManyAttempts rejects a login that is temporarily blocked.
func TooManyAttempts() *AppError {
	return newErr(ErrCodeTooManyAttempts, "too many failed attempts, try again later")
}

// SessionNotFound is returned for unknown and expired ids alike, with no detail attached.
func SessionNotFound() *AppError { return newErr(ErrCodeSessionNotFound, "session not found") }

// TooManySessions rejects a connect that would exceed the subject's quota.
func TooManySessions(limit int) *AppError {
	return newErr(ErrCodeTooManySessions, fmt.Sprintf("maximum number of sessions (%d) reached", limit))
}

// ReconnectDenied rejects a reconnect attempt.
func ReconnectDenied(reason Reason) *AppError {
	e := newErr(ErrCodeReconnectDenied, "reconnect denied")
	e.Reason = reason
	return e
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool          { return HasCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool          { return HasCode(err, ErrCodeConflict) }
func IsValidation(err error) bool        { return HasCode(err, ErrCodeValidation) }
func IsInternal(err error) bool          { return HasCode(err, ErrCodeInternal) }
func IsConfiguration(err error) bool     { return HasCode(err, ErrCodeConfiguration) }
func IsUnavailable(err error) bool       { return HasCode(err, ErrCodeUnavailable) }
func IsInvalidCredential(err error) bool { return HasCode(err, ErrCodeInvalidCredential) }
func IsAccountLocked(err error) bool     { return HasCode(err, ErrCodeAccountLocked) }
func IsTooManyAttempts(err error) bool   { return HasCode(err, ErrCodeTooManyAttempts) }
func IsSessionNotFound(err error) bool   { return HasCode(err, ErrCodeSessionNotFound) }
func IsTooManySessions(err error) bool   { return HasCode(err, ErrCodeTooManySessions) }
func IsReconnectDenied(err error) bool   { return HasCode(err, ErrCodeReconnectDenied) }

// GetReason returns the Reason of the first AppError in err's chain.
func GetReason(err error) Reason {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

// GetCode returns the code of the first AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field of the first AppError in err's chain, or "".
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
