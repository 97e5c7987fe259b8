// Package confirmation provides the ways an instant-transfer session learns its outcome.
package confirmation

import (
	"context"
	"time"

	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"
)

const (
	DefaultDelay        = 10 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Timer reports settlement once Delay has elapsed. It stands in for a payment service that
// cannot notify the checkout.
type Timer struct {
	Delay time.Duration
}

func (t Timer) Await(ctx context.Context, _ dompay.Session) (dompay.Confirmation, error) {
	d := t.Delay
	if d <= 0 {
		d = DefaultDelay
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return dompay.ConfirmationSettled, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// StatusChecker reads the provider status of a payment.
type StatusChecker interface {
	Status(ctx context.Context, paymentID string) (string, error)
}

// Poller asks the payment service for the status of the session's payment every Interval.
// Approved settles; declined or expired, or an expiry time in the past, expires. Lookup errors
// are logged and polling continues.
type Poller struct {
	Checker  StatusChecker
	Interval time.Duration
	Logger   observability.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p Poller) Await(ctx context.Context, s dompay.Session) (dompay.Confirmation, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	base := p.Logger
	if base == nil {
		base = observability.NopLogger()
	}
	logger := logctx.FromOr(ctx, base).With(
		observability.F("component", "payment_poller"),
		observability.F("payment_id", s.Payload.PaymentID),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := p.Checker.Status(ctx, s.Payload.PaymentID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Warn("payment_status_poll_failed", observability.F("error", err.Error()))
			continue
		}

		switch status {
		case dompay.ProviderStatusApproved:
			return dompay.ConfirmationSettled, nil
		case dompay.ProviderStatusDeclined, dompay.ProviderStatusExpired:
			return dompay.ConfirmationExpired, nil
		}
		if s.Payload.Expired(now()) {
			return dompay.ConfirmationExpired, nil
		}
	}
}
