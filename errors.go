package tinywebd

import (
	"syscall"

	"github.com/ehrlich-b/tinywebd/internal/srverr"
)

// ServerError is a structured error carrying the operation, connection
// context, and errno that produced it. The type lives in internal/srverr so
// that internal/dbpool can build the same error shape without importing
// this package; these are aliases so callers at the root still spell it
// tinywebd.ServerError.
type ServerError = srverr.ServerError

// ServerErrorCode categorizes a ServerError for programmatic handling.
type ServerErrorCode = srverr.ServerErrorCode

const (
	ErrCodeBadRequest = srverr.ErrCodeBadRequest
	ErrCodeNotFound   = srverr.ErrCodeNotFound
	ErrCodeForbidden  = srverr.ErrCodeForbidden
	ErrCodeOverloaded = srverr.ErrCodeOverloaded
	ErrCodeIOError    = srverr.ErrCodeIOError
	ErrCodeDBError    = srverr.ErrCodeDBError
	ErrCodeTimeout    = srverr.ErrCodeTimeout
	ErrCodeClosed     = srverr.ErrCodeClosed
)

// NewError creates a structured error with no fd/errno context.
func NewError(op string, code ServerErrorCode, msg string) *ServerError {
	return srverr.NewError(op, code, msg)
}

// NewErrorWithErrno creates a structured error from a syscall failure.
func NewErrorWithErrno(op string, fd int, errno syscall.Errno) *ServerError {
	return srverr.NewErrorWithErrno(op, fd, errno)
}

// NewConnError creates a structured error scoped to one connection fd.
func NewConnError(op string, fd int, code ServerErrorCode, msg string) *ServerError {
	return srverr.NewConnError(op, fd, code, msg)
}

// WrapError wraps an existing error with server context, mapping syscall
// errnos to a ServerErrorCode when possible.
func WrapError(op string, inner error) *ServerError {
	return srverr.WrapError(op, inner)
}

func mapErrnoToCode(errno syscall.Errno) ServerErrorCode {
	return srverr.MapErrnoToCode(errno)
}

// IsCode reports whether err (or any error it wraps) carries the given code.
func IsCode(err error, code ServerErrorCode) bool { return srverr.IsCode(err, code) }

// IsErrno reports whether err (or any error it wraps) carries the given
// errno.
func IsErrno(err error, errno syscall.Errno) bool { return srverr.IsErrno(err, errno) }
