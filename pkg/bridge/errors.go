package bridge

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of a bridge failure. Protocol adapters translate
// kinds into their own error names.
type ErrorKind int

const (
	// KindInvalidIdentifier: the identifier is malformed or belongs to another provider.
	KindInvalidIdentifier ErrorKind = iota + 1

	// KindUnknownProperty: a filter names a field outside the schema.
	KindUnknownProperty

	// KindBackendUnavailable: the endpoint has no entry point for the operation.
	KindBackendUnavailable

	// KindBackendError wraps whatever the backend reported.
	KindBackendError

	// KindOperationNotPermitted: search against a non-root object.
	KindOperationNotPermitted
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidIdentifier:
		return "InvalidIdentifier"
	case KindUnknownProperty:
		return "UnknownProperty"
	case KindBackendUnavailable:
		return "BackendUnavailable"
	case KindBackendError:
		return "BackendError"
	case KindOperationNotPermitted:
		return "OperationNotPermitted"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrInvalidIdentifier     = &Error{Kind: KindInvalidIdentifier}
	ErrUnknownProperty       = &Error{Kind: KindUnknownProperty}
	ErrBackendUnavailable    = &Error{Kind: KindBackendUnavailable}
	ErrBackendError          = &Error{Kind: KindBackendError}
	ErrOperationNotPermitted = &Error{Kind: KindOperationNotPermitted}
)

// Error is returned by every bridge operation.
type Error struct {
	Kind ErrorKind

	// Message is a human readable description.
	Message string

	// Property is the offending field name for KindUnknownProperty.
	Property string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Property != "" {
		msg += ": " + e.Property
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Property == "" && t.Err == nil
}

// KindOf returns the kind of err, or 0 if err is not a bridge error.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}

func invalidIdentifier(id string, cause error) *Error {
	return &Error{Kind: KindInvalidIdentifier, Message: fmt.Sprintf("invalid identifier %q", id), Err: cause}
}

func unknownProperty(name string) *Error {
	return &Error{Kind: KindUnknownProperty, Message: "unknown property", Property: name}
}

func backendError(err error) *Error {
	return &Error{Kind: KindBackendError, Message: "backend error", Err: err}
}

func notPermitted(msg string) *Error {
	return &Error{Kind: KindOperationNotPermitted, Message: msg}
}

// Unavailable reports a missing entry point on an endpoint.
func Unavailable(op, endpoint string) *Error {
	return &Error{Kind: KindBackendUnavailable, Message: fmt.Sprintf("%s not available on %s", op, endpoint)}
}
