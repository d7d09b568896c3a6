package build

import (
	"errors"
	"fmt"
)

// Code is a stable error code string, part of the API contract.
type Code string

const (
	EInvalidInput     Code = "E_INVALID_INPUT"     // bad URL or missing fields, user-correctable
	ENotFound         Code = "E_NOT_FOUND"         // unknown build id
	EInvalidState     Code = "E_INVALID_STATE"     // operation not valid for the current status
	EArtifactMissing  Code = "E_ARTIFACT_MISSING"  // record and artifact store disagree
	ETriggerFailed    Code = "E_TRIGGER_FAILED"    // external CI dispatch failed
	EIDCollision      Code = "E_ID_COLLISION"      // generated id already taken, retry exhausted
	EStoreUnavailable Code = "E_STORE_UNAVAILABLE" // record store unreachable
)

// Error is the standard error type for build lifecycle failures.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

// Error returns the stable "CODE: message" format.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with a code and message.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// WrapError creates an Error wrapping an underlying cause.
func WrapError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// CodeOf extracts the error code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
