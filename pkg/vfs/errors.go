package vfs

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies every failure the layer can report.
type ErrorKind string

const (
	KindSecurityRestriction ErrorKind = "SecurityRestriction"
	KindPermissionDenied    ErrorKind = "PermissionDenied"
	KindUserCancelled       ErrorKind = "UserCancelled"
	KindPathNotFound        ErrorKind = "PathNotFound"
	KindNotFound            ErrorKind = "NotFound"
	KindForbiddenRootWrite  ErrorKind = "ForbiddenRootWrite"
	KindBackendUnreachable  ErrorKind = "BackendUnreachable"
	KindInvalidHandle       ErrorKind = "InvalidHandle"
	KindOperationInProgress ErrorKind = "OperationInProgress"
	KindNoActiveSession     ErrorKind = "NoActiveSession"
	KindAlreadyExists       ErrorKind = "AlreadyExists"
	KindInvalidArgument     ErrorKind = "InvalidArgument"
	KindInternal            ErrorKind = "Internal"
)

// Fallback reports whether a failure of this kind lets the facade try the
// other backend.
func (k ErrorKind) Fallback() bool {
	return k == KindSecurityRestriction || k == KindBackendUnreachable
}

// Missing reports whether the kind means the target does not exist.
func (k ErrorKind) Missing() bool {
	return k == KindNotFound || k == KindPathNotFound
}

// Wire codes exchanged with the companion file service.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeForbiddenRootWrite = "FORBIDDEN_ROOT_WRITE"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeInternal           = "INTERNAL"
)

// KindFromCode maps a companion service error code back to a kind.
func KindFromCode(code string) ErrorKind {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case CodeNotFound:
		return KindNotFound
	case CodeAlreadyExists:
		return KindAlreadyExists
	case CodePermissionDenied:
		return KindPermissionDenied
	case CodeForbiddenRootWrite:
		return KindForbiddenRootWrite
	case CodeInvalidArgument:
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// Error is the structured failure carried by every Result.
type Error struct {
	Kind      ErrorKind
	Message   string
	Solutions []string
	cause     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Cause satisfies github.com/pkg/errors' causer.
func (e *Error) Cause() error { return e.cause }

// Is matches kind sentinels such as ErrNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.cause == nil
}

var (
	ErrSecurityRestriction = &Error{Kind: KindSecurityRestriction}
	ErrPermissionDenied    = &Error{Kind: KindPermissionDenied}
	ErrUserCancelled       = &Error{Kind: KindUserCancelled}
	ErrPathNotFound        = &Error{Kind: KindPathNotFound}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbiddenRootWrite  = &Error{Kind: KindForbiddenRootWrite}
	ErrBackendUnreachable  = &Error{Kind: KindBackendUnreachable}
	ErrInvalidHandle       = &Error{Kind: KindInvalidHandle}
	ErrOperationInProgress = &Error{Kind: KindOperationInProgress}
	ErrNoActiveSession     = &Error{Kind: KindNoActiveSession}
	ErrAlreadyExists       = &Error{Kind: KindAlreadyExists}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

func (e *Error) withSolutions(solutions ...string) *Error {
	e.Solutions = append(e.Solutions, solutions...)
	return e
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// asError converts any error to *Error. Plain filesystem errors are
// classified by their io/fs sentinel.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return wrapError(KindNotFound, err, "not found")
	case errors.Is(err, fs.ErrExist):
		return wrapError(KindAlreadyExists, err, "already exists")
	case errors.Is(err, fs.ErrPermission):
		return wrapError(KindPermissionDenied, err, "permission denied")
	case errors.Is(err, fs.ErrClosed):
		return wrapError(KindInvalidHandle, err, "handle is closed")
	case errors.Is(err, context.DeadlineExceeded):
		return wrapError(KindBackendUnreachable, err, "operation timed out")
	}
	return wrapError(KindInternal, err, "operation failed")
}
