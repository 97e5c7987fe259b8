package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider statuses reported by the payment service.
const (
	ProviderStatusPending  = "pending"
	ProviderStatusApproved = "approved"
	ProviderStatusDeclined = "declined"
	ProviderStatusExpired  = "expired"
)

// Payload is the opaque provider response. The core reads only display fields and, for card
// payments, the approved/declined flag.
type Payload struct {
	PaymentID    string
	Method       Method
	Status       string
	Amount       decimal.Decimal
	QRCode       string
	QRCodeImage  string
	Instructions string
	ExpiresAt    time.Time
	CardLastFour string
	Message      string
}

func (p Payload) Approved() bool { return p.Status == ProviderStatusApproved }

// Expired reports whether the payload carries an expiry that is not after now.
func (p Payload) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// InitiateRequest is the payment-initiation call for one order.
type InitiateRequest struct {
	OrderID string
	Method  Method
	Card    *CardData
}

// Confirmation is the eventual outcome of an instant-transfer wait.
type Confirmation string

const (
	ConfirmationSettled Confirmation = "settled"
	ConfirmationExpired Confirmation = "expired"
)
