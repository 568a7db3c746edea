package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures. Alignment and transport
// errors are retried; exhaustion and stall errors escalate to the task;
// configuration errors fail fast without consuming retry budget.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrAlignment
	ErrTransport
	ErrExhaustion
	ErrStall
	ErrConfig
)

func (k ErrorKind) String() string {
	switch k {
	case ErrAlignment:
		return "Alignment"
	case ErrTransport:
		return "Transport"
	case ErrExhaustion:
		return "Exhaustion"
	case ErrStall:
		return "Stall"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NewErrorWithCause(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the kind from an error chain, ErrUnknown if absent.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrUnknown
}

// Retryable reports whether an error should be charged against the
// per-segment retry budget and attempted again.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrConfig, ErrExhaustion, ErrStall:
		return false
	}
	return true
}
