package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the session core
type ErrorKind int

const (
	KindNetworkFailure ErrorKind = iota + 1
	KindRemoteRejected
	KindStreamDisconnected
	KindInvalidReference
	KindLoadError
)

// String returns the taxonomy name of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindNetworkFailure:
		return "NETWORK_FAILURE"
	case KindRemoteRejected:
		return "REMOTE_REJECTED"
	case KindStreamDisconnected:
		return "STREAM_DISCONNECTED"
	case KindInvalidReference:
		return "INVALID_REFERENCE"
	case KindLoadError:
		return "LOAD_ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrNetworkFailure     = errors.New("network failure")
	ErrRemoteRejected     = errors.New("remote rejected request")
	ErrStreamDisconnected = errors.New("stream disconnected")
	ErrInvalidReference   = errors.New("invalid reference")
	ErrLoadError          = errors.New("load error")
)

// Error is a classified failure. Status is the HTTP status for
// REMOTE_REJECTED and zero otherwise.
type Error struct {
	Kind   ErrorKind
	Op     string
	Path   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(kind ErrorKind) error {
	switch kind {
	case KindNetworkFailure:
		return ErrNetworkFailure
	case KindRemoteRejected:
		return ErrRemoteRejected
	case KindStreamDisconnected:
		return ErrStreamDisconnected
	case KindInvalidReference:
		return ErrInvalidReference
	case KindLoadError:
		return ErrLoadError
	default:
		return nil
	}
}

// NewError creates a classified error
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidReference reports an operation on a path missing from its collection
func InvalidReference(op, path string) *Error {
	return &Error{Kind: KindInvalidReference, Op: op, Path: path}
}

// KindOf returns the kind of a classified error, or zero
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
