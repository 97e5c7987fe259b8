package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/snackshop/internal/domain/order"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	useCaseOrderComplete = "order.complete"
	DefaultNoticeWindow  = 5 * time.Second
)

// SuccessMessage is the notice shown once an order is paid.
func SuccessMessage(orderID string) string {
	return fmt.Sprintf("Pedido #%s pago com sucesso!", orderID)
}

// Reconciler applies the side effects of a settled payment: the cart is cleared, the order is
// marked completed in the history and a success notice is shown. Each order is reconciled once.
type Reconciler struct {
	cart    CartClearer
	history domain.Repository
	notices Notifier
	window  time.Duration
	tracer  observability.Tracer

	mu   sync.Mutex
	done map[string]struct{}

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewReconciler(cart CartClearer, history domain.Repository, notices Notifier, window time.Duration, tel observability.Observability) *Reconciler {
	if window <= 0 {
		window = DefaultNoticeWindow
	}
	log, tracer, metrics := observability.Resolve(tel)
	return &Reconciler{
		cart:         cart,
		history:      history,
		notices:      notices,
		window:       window,
		tracer:       tracer,
		done:         make(map[string]struct{}),
		log:          log.With(observability.F("service", orderService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

// OnSettled reconciles o. A second call for the same order id is a no-op.
func (r *Reconciler) OnSettled(ctx context.Context, o domain.Order) (err error) {
	logger := logctx.FromOr(ctx, r.log).With(
		observability.F("use_case", useCaseOrderComplete),
		observability.F("order_id", o.ID),
	)

	ctx, span := r.tracer.Start(ctx, spanPrefix+"CompleteOrder",
		attribute.String("use_case", useCaseOrderComplete),
		attribute.String("order.id", o.ID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		r.reqCounter.Add(1,
			observability.L("use_case", useCaseOrderComplete),
			observability.L("outcome", outcome),
		)
		r.durHistogram.Observe(lat, observability.L("use_case", useCaseOrderComplete))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if o.ID == "" {
		outcome, statusText = "error", "ORDER_ID_REQUIRED"
		return errors.New("order: id is required")
	}

	r.mu.Lock()
	if _, seen := r.done[o.ID]; seen {
		r.mu.Unlock()
		outcome, statusText = "ignored", "ALREADY_RECONCILED"
		return nil
	}
	r.done[o.ID] = struct{}{}
	r.mu.Unlock()

	if r.cart != nil {
		r.cart.Clear()
	}

	if r.history != nil {
		if herr := r.markCompleted(ctx, o); herr != nil {
			// The payment went through; the history entry is best effort.
			statusText = "HISTORY_UPDATE_FAILED"
			span.RecordError(herr)
			logger.Warn("order_history_update_failed", observability.F("error", herr.Error()))
		}
	}

	if r.notices != nil {
		r.notices.Show(ctx, SuccessMessage(o.ID), r.window)
	}
	return nil
}

func (r *Reconciler) markCompleted(ctx context.Context, o domain.Order) error {
	stored, err := r.history.Get(ctx, o.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		entity := o.Clone()
		entity.MarkCompleted()
		if err := r.history.Insert(ctx, entity); err != nil {
			return fmt.Errorf("order: insert completed: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("order: load: %w", err)
	}

	if !stored.MarkCompleted() {
		return nil
	}
	if err := r.history.Update(ctx, stored); err != nil {
		return fmt.Errorf("order: update: %w", err)
	}
	return nil
}
