package order

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/snackshop/internal/application"
	domcart "github.com/Zhima-Mochi/snackshop/internal/domain/cart"
	domain "github.com/Zhima-Mochi/snackshop/internal/domain/order"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService       = "order-service"
	useCaseOrderSubmit = "order.submit"
	useCaseOrderList   = "order.list"
	spanPrefix         = "UC."

	emptyCartMessage = "cart is empty"
)

var (
	_ application.UseCase[SubmitOrderInput, *SubmitOrderResult] = (*SubmitOrderUseCase)(nil)
	_ application.UseCase[struct{}, []*domain.Order]            = (*ListOrdersUseCase)(nil)
)

// SubmitOrderUseCase turns the cart's lines into a server-confirmed order.
type SubmitOrderUseCase struct {
	gateway Gateway
	history domain.Repository
	tracer  observability.Tracer

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewSubmitOrderUseCase(gateway Gateway, history domain.Repository, tel observability.Observability) *SubmitOrderUseCase {
	log, tracer, metrics := observability.Resolve(tel)
	return &SubmitOrderUseCase{
		gateway:      gateway,
		history:      history,
		tracer:       tracer,
		log:          log.With(observability.F("service", orderService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

type SubmitOrderInput struct {
	Lines []domcart.Line
}

type SubmitOrderResult struct {
	Order domain.Order
}

// Execute makes exactly one order-creation call. The cart is never touched here: on failure the
// caller still holds the lines it submitted.
func (uc *SubmitOrderUseCase) Execute(ctx context.Context, cmd SubmitOrderInput) (_ *SubmitOrderResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseOrderSubmit))

	var orderID string
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"SubmitOrder",
		attribute.String("use_case", useCaseOrderSubmit),
		attribute.Int("order.lines", len(cmd.Lines)),
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

		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseOrderSubmit),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat, observability.L("use_case", useCaseOrderSubmit))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if orderID != "" {
			fields = append(fields, observability.F("order_id", orderID))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	lines := make([]domcart.Line, 0, len(cmd.Lines))
	for _, l := range cmd.Lines {
		if l.Quantity > 0 {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		outcome, statusText = "error", "CART_EMPTY"
		return nil, apperr.Validation(emptyCartMessage)
	}
	if cerr := ctx.Err(); cerr != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, apperr.Connectivity(cerr)
	}

	created, gerr := uc.gateway.CreateOrder(ctx, lines)
	if gerr != nil {
		outcome = "error"
		switch apperr.KindOf(gerr) {
		case apperr.KindRejection:
			statusText = "ORDER_REJECTED"
			return nil, gerr
		case apperr.KindConnectivity:
			statusText = "ORDER_UNREACHABLE"
			return nil, gerr
		default:
			statusText = "ORDER_UNREACHABLE"
			return nil, apperr.Connectivity(gerr)
		}
	}
	orderID = created.ID

	if uc.history != nil {
		if herr := uc.history.Insert(ctx, created); herr != nil && !errors.Is(herr, domain.ErrConflict) {
			// The server accepted the order; local history is best effort.
			span.RecordError(herr)
			statusText = "HISTORY_INSERT_FAILED"
			logger.Warn("order_history_insert_failed",
				observability.F("order_id", created.ID),
				observability.F("error", herr.Error()),
			)
		}
	}

	span.SetAttributes(
		attribute.String("order.id", created.ID),
		attribute.String("order.total", created.TotalAmount.String()),
	)
	span.AddEvent("order.submitted", trace.WithAttributes(attribute.String("order.id", created.ID)))

	return &SubmitOrderResult{Order: *created.Clone()}, nil
}

// ListOrdersUseCase reads the local order history, newest first.
type ListOrdersUseCase struct {
	history domain.Repository
	log     observability.Logger
}

func NewListOrdersUseCase(history domain.Repository, tel observability.Observability) *ListOrdersUseCase {
	log, _, _ := observability.Resolve(tel)
	return &ListOrdersUseCase{
		history: history,
		log:     log.With(observability.F("service", orderService)),
	}
}

func (uc *ListOrdersUseCase) Execute(ctx context.Context, _ struct{}) ([]*domain.Order, error) {
	orders, err := uc.history.List(ctx)
	if err != nil {
		logctx.FromOr(ctx, uc.log).Warn("order_history_list_failed",
			observability.F("use_case", useCaseOrderList),
			observability.F("error", err.Error()),
		)
		return nil, err
	}
	return orders, nil
}
