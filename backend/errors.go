// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies every failure a backend call or a procutil operation can report.
// Callers branch on the kind instead of matching concrete error types.
type Kind int

const (
	// KindOther is any failure that is not one of the kinds below.
	KindOther Kind = iota
	// KindNoSuchProcess means the process vanished or its pid was reused.
	KindNoSuchProcess
	// KindAccessDenied means the process exists but the caller lacks permission.
	KindAccessDenied
	// KindTimeoutExpired means a bounded wait ran out of time.
	KindTimeoutExpired
	// KindNotImplemented means the attribute or operation is unavailable on this platform.
	KindNotImplemented
	// KindInvalidArgument means malformed input such as a negative pid or timeout.
	KindInvalidArgument
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNoSuchProcess:
		return "no such process"
	case KindAccessDenied:
		return "access denied"
	case KindTimeoutExpired:
		return "timeout expired"
	case KindNotImplemented:
		return "not implemented"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "error"
	}
}

// Sentinel values usable with errors.Is.
var (
	ErrNoSuchProcess   = errors.New("no such process")
	ErrAccessDenied    = errors.New("access denied")
	ErrTimeoutExpired  = errors.New("timeout expired")
	ErrNotImplemented  = errors.New("not implemented on this platform")
	ErrInvalidArgument = errors.New("invalid argument")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNoSuchProcess:
		return ErrNoSuchProcess
	case KindAccessDenied:
		return ErrAccessDenied
	case KindTimeoutExpired:
		return ErrTimeoutExpired
	case KindNotImplemented:
		return ErrNotImplemented
	case KindInvalidArgument:
		return ErrInvalidArgument
	default:
		return nil
	}
}

// Error is the error type returned by backends and by the packages built on them.
type Error struct {
	Kind Kind
	Pid  int32  // zero when the failure is not tied to a process
	Name string // process name when known
	Msg  string
	Err  error // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	details := ""
	switch {
	case e.Pid != 0 && e.Name != "":
		details = fmt.Sprintf(" (pid=%d, name=%q)", e.Pid, e.Name)
	case e.Pid != 0:
		details = fmt.Sprintf(" (pid=%d)", e.Pid)
	}
	if e.Err != nil {
		return msg + details + ": " + e.Err.Error()
	}
	return msg + details
}

// Unwrap returns the cause so errors.Is/As can see through the wrapper.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of err, looking through wrapped errors.
// A nil error has KindOther.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNoSuchProcess):
		return KindNoSuchProcess
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, ErrTimeoutExpired):
		return KindTimeoutExpired
	case errors.Is(err, ErrNotImplemented):
		return KindNotImplemented
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	}
	return KindOther
}

// IsNoSuchProcess reports whether err has KindNoSuchProcess.
func IsNoSuchProcess(err error) bool { return KindOf(err) == KindNoSuchProcess }

// IsAccessDenied reports whether err has KindAccessDenied.
func IsAccessDenied(err error) bool { return KindOf(err) == KindAccessDenied }

// IsTimeout reports whether err has KindTimeoutExpired.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeoutExpired }

// IsNotImplemented reports whether err has KindNotImplemented.
func IsNotImplemented(err error) bool { return KindOf(err) == KindNotImplemented }

// NoSuchProcess builds a KindNoSuchProcess error.
func NoSuchProcess(pid int32, name, msg string) *Error {
	return &Error{Kind: KindNoSuchProcess, Pid: pid, Name: name, Msg: msg}
}

// AccessDenied builds a KindAccessDenied error.
func AccessDenied(pid int32, name, msg string) *Error {
	return &Error{Kind: KindAccessDenied, Pid: pid, Name: name, Msg: msg}
}

// TimeoutExpired builds a KindTimeoutExpired error for a wait on pid.
func TimeoutExpired(pid int32, timeout time.Duration) *Error {
	return &Error{
		Kind: KindTimeoutExpired,
		Pid:  pid,
		Msg:  fmt.Sprintf("timeout after %s", timeout),
	}
}

// NotImplemented builds a KindNotImplemented error for the named attribute or operation.
func NotImplemented(pid int32, what string) *Error {
	return &Error{Kind: KindNotImplemented, Pid: pid, Msg: what + " is not implemented on this platform"}
}

// InvalidArgument builds a KindInvalidArgument error with a formatted message.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}
