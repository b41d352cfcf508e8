package jbod

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures reported by the cache, transport and array.
type ErrorCode int

const (
	// CodeNotInitialized indicates the cache or connection was not set up.
	CodeNotInitialized ErrorCode = iota + 1

	// CodeInvalidArgument indicates an out-of-range capacity, disk or block id,
	// or an inconsistent buffer/length pair.
	CodeInvalidArgument

	// CodeOutOfRange indicates an address range beyond the array or a length
	// above MaxIOSize.
	CodeOutOfRange

	// CodePermissionDenied indicates I/O while unmounted, or a write without
	// write permission.
	CodePermissionDenied

	// CodeDuplicateKey indicates a cache insert of a location already cached.
	CodeDuplicateKey

	// CodeRemoteFailure indicates the device reported failure or a round trip
	// could not be completed.
	CodeRemoteFailure

	// CodeConnectionAbsent indicates an operation with no established session.
	CodeConnectionAbsent
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeNotInitialized:
		return "NotInitialized"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeOutOfRange:
		return "OutOfRange"
	case CodePermissionDenied:
		return "PermissionDenied"
	case CodeDuplicateKey:
		return "DuplicateKey"
	case CodeRemoteFailure:
		return "RemoteFailure"
	case CodeConnectionAbsent:
		return "ConnectionAbsent"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error is the error type returned by this module's packages.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so the sentinels below can be
// used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching.
var (
	ErrNotInitialized   = &Error{Code: CodeNotInitialized}
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument}
	ErrOutOfRange       = &Error{Code: CodeOutOfRange}
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrDuplicateKey     = &Error{Code: CodeDuplicateKey}
	ErrRemoteFailure    = &Error{Code: CodeRemoteFailure}
	ErrConnectionAbsent = &Error{Code: CodeConnectionAbsent}
)

// NewError creates an error with the given code.
func NewError(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError creates an error with the given code wrapping cause.
func WrapError(code ErrorCode, op string, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
