package vb2

import (
	"fmt"
	"syscall"
)

// ErrorCode identifies the kind of a queue error.
type ErrorCode string

// ErrorCode constants for queue errors.
const (
	ErrCodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	ErrCodeWouldBlock        ErrorCode = "WOULD_BLOCK"
	ErrCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	ErrCodeBusy              ErrorCode = "BUSY"
	ErrCodeNotSupported      ErrorCode = "NOT_SUPPORTED"
	ErrCodeNoDevice          ErrorCode = "NO_DEVICE"
)

// Sentinels for errors.Is comparisons. Any *Error with the same code matches.
var (
	ErrInvalidArgument   = &Error{Code: ErrCodeInvalidArgument, Message: "invalid argument"}
	ErrWouldBlock        = &Error{Code: ErrCodeWouldBlock, Message: "no buffer ready"}
	ErrResourceExhausted = &Error{Code: ErrCodeResourceExhausted, Message: "resource exhausted"}
	ErrBusy              = &Error{Code: ErrCodeBusy, Message: "device busy"}
	ErrNotSupported      = &Error{Code: ErrCodeNotSupported, Message: "operation not supported"}
	ErrNoDevice          = &Error{Code: ErrCodeNoDevice, Message: "device unregistered"}
)

// Error represents a failed queue or device operation.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Cause   error          `json:"cause,omitempty"`
}

// NewError creates a new queue error.
func NewError(code ErrorCode, message string, context map[string]any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// NewErrorWithCause creates a new queue error with a cause.
func NewErrorWithCause(code ErrorCode, message string, cause error, context map[string]any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: context,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HasCode checks if the error matches a specific code.
func (e *Error) HasCode(code ErrorCode) bool {
	return e.Code == code
}

// Errno returns the errno a kernel capture driver reports for this error.
func (e *Error) Errno() syscall.Errno {
	switch e.Code {
	case ErrCodeInvalidArgument:
		return syscall.EINVAL
	case ErrCodeWouldBlock:
		return syscall.EAGAIN
	case ErrCodeResourceExhausted:
		return syscall.ENOMEM
	case ErrCodeBusy:
		return syscall.EBUSY
	case ErrCodeNotSupported:
		return syscall.ENOTTY
	case ErrCodeNoDevice:
		return syscall.ENODEV
	default:
		return syscall.EIO
	}
}

func invalidArgument(message string, context map[string]any) *Error {
	return NewError(ErrCodeInvalidArgument, message, context)
}
