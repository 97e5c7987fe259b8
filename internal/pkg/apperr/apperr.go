// Package apperr carries the user-facing error taxonomy of the checkout flow.
//
// Boundary failures are converted into an *Error at the component that issued the call,
// so the interface layer can render Message beside the relevant affordance.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindValidation is a locally detected problem; nothing was sent over the boundary.
	KindValidation Kind = "validation"
	// KindConnectivity means the request could not be completed.
	KindConnectivity Kind = "connectivity"
	// KindRejection means the remote service answered with a non-success status.
	KindRejection Kind = "rejection"
)

// ConnectivityMessage is shown whenever a request fails without a server-supplied reason.
const ConnectivityMessage = "connection error"

type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status of a rejection, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Connectivity(err error) *Error {
	return &Error{Kind: KindConnectivity, Message: ConnectivityMessage, Err: err}
}

// Rejection keeps msg verbatim; fallback is used when the server sent no message.
func Rejection(status int, msg, fallback string) *Error {
	if msg == "" {
		msg = fallback
	}
	return &Error{Kind: KindRejection, Message: msg, Status: status}
}

// KindOf reports the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries an *Error of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ConnectivityMessage
}
