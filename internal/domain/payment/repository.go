package payment

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("payment: not found")

// Record is a payment as the payment service stores it.
type Record struct {
	OrderID   string
	Payload   Payload
	CreatedAt time.Time
}

type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, paymentID string) (*Record, error)
}
