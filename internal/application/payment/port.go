package payment

import (
	"context"

	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
)

// Gateway is the outbound port for payment initiation. Failures are *apperr.Error values.
type Gateway interface {
	Initiate(ctx context.Context, req dompay.InitiateRequest) (*dompay.Payload, error)
}

// StatusChecker reads the provider status of an initiated payment.
type StatusChecker interface {
	Status(ctx context.Context, paymentID string) (string, error)
}

// ConfirmationChannel reports the eventual outcome of an instant-transfer payment. Await blocks
// until the outcome is known or ctx ends.
type ConfirmationChannel interface {
	Await(ctx context.Context, s dompay.Session) (dompay.Confirmation, error)
}
