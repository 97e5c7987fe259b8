package payment

import (
	"time"

	"github.com/Zhima-Mochi/snackshop/internal/domain/order"
)

// SessionSettledEvent is emitted once when a session reaches a paid state and its
// settlement notification is due.
type SessionSettledEvent struct {
	Token      string
	Order      order.Order
	Method     Method
	State      State
	OccurredAt time.Time
}

func (SessionSettledEvent) EventName() string { return "payment.session_settled" }

func NewSessionSettledEvent(s Session, o order.Order) SessionSettledEvent {
	return SessionSettledEvent{
		Token:      s.Token,
		Order:      o,
		Method:     s.Method,
		State:      s.State,
		OccurredAt: time.Now().UTC(),
	}
}
