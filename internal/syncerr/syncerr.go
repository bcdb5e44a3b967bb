// Package syncerr classifies failures of the synchronization core so callers
// can decide between redirecting to login, retrying later, or rejecting input.
package syncerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Precondition means the credential or user context is missing. Fatal
	// for the current session; the UI should redirect to login.
	Precondition Kind = "precondition"
	// Unauthorized means the backend refused the credential (401/403).
	Unauthorized    Kind = "unauthorized"
	Network         Kind = "network"
	ServerRejection Kind = "server_rejection"
	Validation      Kind = "validation"
	Storage         Kind = "storage"
)

type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func IsPrecondition(err error) bool    { return KindOf(err) == Precondition }
func IsUnauthorized(err error) bool    { return KindOf(err) == Unauthorized }
func IsNetwork(err error) bool         { return KindOf(err) == Network }
func IsServerRejection(err error) bool { return KindOf(err) == ServerRejection }
func IsValidation(err error) bool      { return KindOf(err) == Validation }
func IsStorage(err error) bool         { return KindOf(err) == Storage }

// RequiresLogin reports whether err invalidates the session.
func RequiresLogin(err error) bool {
	kind := KindOf(err)
	return kind == Precondition || kind == Unauthorized
}
