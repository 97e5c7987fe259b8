package payment

import "time"

// Session is one bounded attempt to settle payment for one order via one method.
// Token identifies the attempt; asynchronous results carrying another token are stale.
type Session struct {
	Token   string
	OrderID string
	Method  Method
	State   State
	Payload Payload
	// Message is the server-supplied text for a declined or expired outcome.
	Message string
	// Err is the user-facing text of the last failed submission.
	Err       string
	UpdatedAt time.Time
}

func NewSession(token, orderID string, method Method) Session {
	return Session{
		Token:     token,
		OrderID:   orderID,
		Method:    method,
		State:     StateSelectingMethod,
		UpdatedAt: time.Now().UTC(),
	}
}

// Apply moves the session along e and returns the previous state.
func (s *Session) Apply(e Event) (State, error) {
	from := s.State
	to, err := Transition(from, e.Kind)
	if err != nil {
		return from, err
	}

	switch e.Kind {
	case EventSubmit:
		s.Err = ""
		s.Message = ""
	case EventSubmitFailed:
		s.Err = e.Message
		s.Payload = Payload{}
	case EventCardDeclined, EventExpired:
		s.Message = e.Message
	}
	if e.Payload != nil {
		s.Payload = *e.Payload
	}

	s.State = to
	s.UpdatedAt = time.Now().UTC()
	return from, nil
}

func (s Session) Active() bool {
	return s.State != StateSelectingMethod && !s.State.Terminal()
}
