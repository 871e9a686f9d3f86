package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a stable, machine-readable reason attached to an error.
// Codes never change between releases; messages may.
type Code string

const (
	// CodeTargetLost means the observed process exited while a session was running.
	CodeTargetLost Code = "target_lost"
	// CodeTargetNotFound means the observed process did not exist when the session started.
	CodeTargetNotFound Code = "target_not_found"
	// CodeTelemetryUnavailable means the privileged telemetry stream could not start or died.
	CodeTelemetryUnavailable Code = "telemetry_unavailable"
	// CodePartialTreeRead means a descendant vanished between discovery and read.
	CodePartialTreeRead Code = "partial_tree_read"
	// CodeConfigInvalid means the configuration failed validation.
	CodeConfigInvalid Code = "config_invalid"
	// CodeShutdownTimeout means a concurrent activity did not stop within its grace period.
	CodeShutdownTimeout Code = "shutdown_timeout"
)

// Error carries a reason code alongside the human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code, so that
// errors.Is(err, &Error{Code: CodeTargetLost}) works on wrapped chains.
func (e *Error) Is(target error) bool {
	var t *Error
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// New creates a coded error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(code Code, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost reason code in err's chain.
func CodeOf(err error) (Code, bool) {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code, true
	}
	return "", false
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var coded *Error
		if !stderrors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.Err
	}
	return false
}
