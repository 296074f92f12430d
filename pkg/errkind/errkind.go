// Package errkind defines the closed error-kind enumeration every core
// package reports through, and a small error type that carries one of
// those kinds alongside a human-readable message and an optional cause.
package errkind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the closed set of error kinds the RPC layer can report
// to a client.
type Kind int

const (
	Success Kind = iota
	Unknown
	InvalidMethod
	InvalidValue
	InvalidState
	ContainerDoesNotExist
	ContainerAlreadyExists
	PermissionDenied
	NotFound
	Busy
	Storage
	Corrupted
	FreezerTimeout
	VolumeDoesNotExist
)

var names = map[Kind]string{
	Success:                "Success",
	Unknown:                "Unknown",
	InvalidMethod:          "InvalidMethod",
	InvalidValue:           "InvalidValue",
	InvalidState:           "InvalidState",
	ContainerDoesNotExist:  "ContainerDoesNotExist",
	ContainerAlreadyExists: "ContainerAlreadyExists",
	PermissionDenied:       "PermissionDenied",
	NotFound:               "NotFound",
	Busy:                   "Busy",
	Storage:                "Storage",
	Corrupted:              "Corrupted",
	FreezerTimeout:         "FreezerTimeout",
	VolumeDoesNotExist:     "VolumeDoesNotExist",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "Unknown"
}

// Error is the error type every core operation returns: a kind from the
// closed enumeration above, plus a message and (optionally) the
// underlying cause it was wrapping.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a plain kind+message error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a plain kind+message error with formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error, preserving it as
// the cause via github.com/pkg/errors so %+v still prints a stack trace
// from the original failure site.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with Printf-style formatting for the message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Msg: msg, Err: errors.Wrap(err, msg)}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// otherwise reports Unknown. Used at the RPC boundary to fill in the
// response's error_kind field.
func KindOf(err error) Kind {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// MsgOf extracts the human message from err, falling back to err.Error().
func MsgOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
