package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]domain.Record
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{payments: make(map[string]domain.Record)}
}

func (r *PaymentRepository) Save(ctx context.Context, rec *domain.Record) error {
	_ = ctx
	if rec == nil || rec.Payload.PaymentID == "" {
		return fmt.Errorf("payment repository: payment id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[rec.Payload.PaymentID] = *rec
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, paymentID string) (*domain.Record, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}
