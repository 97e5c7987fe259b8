package workerpresentation

import (
	"context"
	"fmt"

	domorder "github.com/Zhima-Mochi/snackshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/snackshop/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"
)

const componentSettlementWorker = "settlement_worker"

// Completer is the order completion side of a settled payment.
type Completer interface {
	OnSettled(ctx context.Context, o domorder.Order) error
}

// SettlementWorker completes orders whose payment session settled.
type SettlementWorker struct {
	subscriber domoutbox.Subscriber
	completer  Completer
	log        observability.Logger
}

func NewSettlementWorker(subscriber domoutbox.Subscriber, completer Completer, tel observability.Observability) *SettlementWorker {
	log, _, _ := observability.Resolve(tel)
	return &SettlementWorker{
		subscriber: subscriber,
		completer:  completer,
		log:        log.With(observability.F("component", componentSettlementWorker)),
	}
}

func (w *SettlementWorker) Start() {
	if w.subscriber == nil || w.completer == nil {
		return
	}
	w.subscriber.Subscribe(dompay.SessionSettledEvent{}.EventName(), w.handleSessionSettled)
}

func (w *SettlementWorker) handleSessionSettled(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dompay.SessionSettledEvent)
	if !ok {
		return nil
	}

	ctx = WithEventContext(ctx, w.log, map[string]string{
		"event_id":       evt.Token,
		"event":          evt.EventName(),
		"payment_method": string(evt.Method),
	})
	ctx = logctx.Enrich(ctx, w.log, observability.F("order_id", evt.Order.ID))
	logger := logctx.FromOr(ctx, w.log)

	if err := w.completer.OnSettled(ctx, evt.Order); err != nil {
		logger.Error("order_completion_failed", observability.F("error", err))
		return fmt.Errorf("settlement worker: complete order: %w", err)
	}

	logger.Info("order_settled", observability.F("state", string(evt.State)))
	return nil
}
