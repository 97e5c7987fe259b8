package payment

import (
	"errors"
	"fmt"
)

var ErrInvalidStateTransition = errors.New("payment: invalid state transition")

type State string

const (
	StateSelectingMethod State = "selecting_method"
	StateSubmitting      State = "submitting"
	StatePixPending      State = "pix_pending"
	StateCardProcessing  State = "card_processing"
	StateSettled         State = "settled"
	StateApproved        State = "approved"
	StateDeclined        State = "declined"
	StateExpired         State = "expired"
)

// Terminal reports whether no further transition can leave s within a session.
func (s State) Terminal() bool {
	switch s {
	case StateSettled, StateApproved, StateDeclined, StateExpired:
		return true
	}
	return false
}

// Paid reports whether s marks the order as paid.
func (s State) Paid() bool { return s == StateSettled || s == StateApproved }

type EventKind string

const (
	EventSubmit         EventKind = "submit"
	EventSubmitFailed   EventKind = "submit_failed"
	EventPixIssued      EventKind = "pix_issued"
	EventCardProcessing EventKind = "card_processing"
	EventCardApproved   EventKind = "card_approved"
	EventCardDeclined   EventKind = "card_declined"
	EventConfirmed      EventKind = "confirmed"
	EventExpired        EventKind = "expired"
)

// Event drives one transition. Payload and Message are copied onto the session when set.
type Event struct {
	Kind    EventKind
	Payload *Payload
	Message string
}

var transitions = map[State]map[EventKind]State{
	StateSelectingMethod: {
		EventSubmit: StateSubmitting,
	},
	StateSubmitting: {
		EventSubmitFailed:   StateSelectingMethod,
		EventPixIssued:      StatePixPending,
		EventCardProcessing: StateCardProcessing,
	},
	StatePixPending: {
		EventConfirmed: StateSettled,
		EventExpired:   StateExpired,
	},
	StateCardProcessing: {
		EventCardApproved: StateApproved,
		EventCardDeclined: StateDeclined,
	},
}

// Transition is the single transition function of the payment state machine.
func Transition(from State, kind EventKind) (State, error) {
	to, ok := transitions[from][kind]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidStateTransition, kind, from)
	}
	return to, nil
}
