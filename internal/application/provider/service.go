// Package provider is the simulated shop backend: it prices orders server-side and behaves like
// a payment provider for instant transfers and cards.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	domcatalog "github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/snackshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	providerService = "shop-provider"
	spanPrefix      = "UC."

	useCaseCreateOrder   = "provider.create_order"
	useCaseCreatePayment = "provider.create_payment"
	useCasePaymentStatus = "provider.payment_status"

	DefaultConfirmAfter = 10 * time.Second
	DefaultPixExpiry    = 30 * time.Minute

	pixInstructions = "Escaneie o QR Code com seu aplicativo bancário ou copie e cole o código PIX"
	// 1x1 PNG placeholder.
	pixQRImage = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
)

// Messages returned to clients verbatim.
const (
	MsgNoItems         = "Nenhum item no pedido"
	MsgInvalidQuantity = "Quantidade inválida"
	MsgItemNotFound    = "Lanche não encontrado"
	MsgOrderNotFound   = "Pedido não encontrado"
	MsgOrderPaid       = "Pedido já foi pago"
	MsgInvalidMethod   = "Método de pagamento inválido"
	MsgCardRequired    = "Dados do cartão são obrigatórios"
	MsgPaymentNotFound = "Pagamento não encontrado"
	MsgCardApproved    = "Pagamento aprovado"
	MsgCardDeclined    = "Cartão recusado"
	MsgCardProcessing  = "Processando pagamento"
)

const (
	cardPaymentIDPrefix = "cc_"
	pixPaymentIDPrefix  = "pix_"
)

type Options struct {
	// ConfirmAfter is how long an instant transfer stays pending before it reads as approved.
	ConfirmAfter time.Duration
	PixExpiry    time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	catalog  domcatalog.Repository
	orders   domorder.Repository
	payments dompay.Repository
	opts     Options
	seq      atomic.Int64
	tracer   observability.Tracer

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewService(
	catalog domcatalog.Repository,
	orders domorder.Repository,
	payments dompay.Repository,
	opts Options,
	tel observability.Observability,
) *Service {
	if opts.ConfirmAfter <= 0 {
		opts.ConfirmAfter = DefaultConfirmAfter
	}
	if opts.PixExpiry <= 0 {
		opts.PixExpiry = DefaultPixExpiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log, tracer, metrics := observability.Resolve(tel)
	return &Service{
		catalog:      catalog,
		orders:       orders,
		payments:     payments,
		opts:         opts,
		tracer:       tracer,
		log:          log.With(observability.F("service", providerService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

// ListSnacks returns the available catalog items in catalog order.
func (s *Service) ListSnacks(ctx context.Context) ([]domcatalog.Item, error) {
	items, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: list snacks: %w", err)
	}
	out := items[:0:0]
	for _, it := range items {
		if it.Available {
			out = append(out, it)
		}
	}
	return out, nil
}

// ListOrders returns stored orders, newest first.
func (s *Service) ListOrders(ctx context.Context) ([]*domorder.Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: list orders: %w", err)
	}
	return orders, nil
}

type OrderItem struct {
	ItemID   domcatalog.ItemID
	Quantity int
}

// CreateOrder prices items against the catalog and stores the order.
func (s *Service) CreateOrder(ctx context.Context, items []OrderItem) (_ *domorder.Order, err error) {
	ctx, done := s.begin(ctx, useCaseCreateOrder, "CreateOrder")
	defer func() { done(err) }()

	if len(items) == 0 {
		return nil, apperr.Validation(MsgNoItems)
	}

	lines := make([]domorder.Line, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, apperr.Validation(MsgInvalidQuantity)
		}
		item, gerr := s.catalog.Get(ctx, it.ItemID)
		if errors.Is(gerr, domcatalog.ErrNotFound) {
			return nil, apperr.Rejection(http.StatusNotFound, MsgItemNotFound, "")
		}
		if gerr != nil {
			return nil, fmt.Errorf("provider: load snack: %w", gerr)
		}
		lines = append(lines, domorder.Line{ItemID: it.ItemID, Quantity: it.Quantity, UnitPrice: item.UnitPrice})
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	id := strconv.FormatInt(s.seq.Add(1), 10)
	o, derr := domorder.New(id, lines, total)
	if derr != nil {
		return nil, fmt.Errorf("provider: construct order: %w", derr)
	}
	if ierr := s.orders.Insert(ctx, o); ierr != nil {
		return nil, fmt.Errorf("provider: save order: %w", ierr)
	}
	return o.Clone(), nil
}

type PaymentInput struct {
	OrderID string
	Method  dompay.Method
	Card    *dompay.CardData
}

// CreatePayment opens a payment for an order. Card outcomes are decided by the card number:
// 4111 and 5555 approve, 4000 declines, anything else stays pending.
func (s *Service) CreatePayment(ctx context.Context, in PaymentInput) (_ *dompay.Record, err error) {
	ctx, done := s.begin(ctx, useCaseCreatePayment, "CreatePayment")
	defer func() { done(err) }()

	if !in.Method.Valid() {
		return nil, apperr.Validation(MsgInvalidMethod)
	}
	o, gerr := s.orders.Get(ctx, in.OrderID)
	if errors.Is(gerr, domorder.ErrNotFound) {
		return nil, apperr.Rejection(http.StatusNotFound, MsgOrderNotFound, "")
	}
	if gerr != nil {
		return nil, fmt.Errorf("provider: load order: %w", gerr)
	}
	if o.IsCompleted() {
		return nil, apperr.Validation(MsgOrderPaid)
	}

	now := s.opts.Now().UTC()
	rec := &dompay.Record{OrderID: o.ID, CreatedAt: now}

	switch in.Method {
	case dompay.MethodInstantTransfer:
		id := pixPaymentIDPrefix + shortHex()
		rec.Payload = dompay.Payload{
			PaymentID:    id,
			Method:       in.Method,
			Status:       dompay.ProviderStatusPending,
			Amount:       o.TotalAmount,
			QRCode:       pixCode(id, o.TotalAmount),
			QRCodeImage:  pixQRImage,
			Instructions: pixInstructions,
			ExpiresAt:    now.Add(s.opts.PixExpiry),
		}
	case dompay.MethodCard:
		if in.Card == nil || strings.TrimSpace(in.Card.Number) == "" {
			return nil, apperr.Validation(MsgCardRequired)
		}
		number := strings.ReplaceAll(in.Card.Number, " ", "")
		status, message := cardOutcome(number)
		rec.Payload = dompay.Payload{
			PaymentID:    cardPaymentIDPrefix + shortHex(),
			Method:       in.Method,
			Status:       status,
			Amount:       o.TotalAmount,
			CardLastFour: lastFour(number),
			Message:      message,
		}
		if status == dompay.ProviderStatusApproved {
			if merr := s.markPaid(ctx, o.ID); merr != nil {
				return nil, merr
			}
		}
	}

	if serr := s.payments.Save(ctx, rec); serr != nil {
		return nil, fmt.Errorf("provider: save payment: %w", serr)
	}
	return rec, nil
}

// PaymentStatus reports the provider status. Instant transfers read as approved once
// ConfirmAfter has elapsed, or expired once their expiry has passed.
func (s *Service) PaymentStatus(ctx context.Context, paymentID string) (_ *dompay.Record, err error) {
	ctx, done := s.begin(ctx, useCasePaymentStatus, "PaymentStatus")
	defer func() { done(err) }()

	rec, gerr := s.payments.Get(ctx, paymentID)
	if errors.Is(gerr, dompay.ErrNotFound) {
		return nil, apperr.Rejection(http.StatusNotFound, MsgPaymentNotFound, "")
	}
	if gerr != nil {
		return nil, fmt.Errorf("provider: load payment: %w", gerr)
	}
	if rec.Payload.Method != dompay.MethodInstantTransfer || rec.Payload.Status != dompay.ProviderStatusPending {
		return rec, nil
	}

	now := s.opts.Now().UTC()
	switch {
	case rec.Payload.Expired(now):
		rec.Payload.Status = dompay.ProviderStatusExpired
	case !now.Before(rec.CreatedAt.Add(s.opts.ConfirmAfter)):
		rec.Payload.Status = dompay.ProviderStatusApproved
		if merr := s.markPaid(ctx, rec.OrderID); merr != nil {
			return nil, merr
		}
	default:
		return rec, nil
	}
	if serr := s.payments.Save(ctx, rec); serr != nil {
		return nil, fmt.Errorf("provider: save payment: %w", serr)
	}
	return rec, nil
}

func (s *Service) markPaid(ctx context.Context, orderID string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("provider: load order: %w", err)
	}
	if !o.MarkCompleted() {
		return nil
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("provider: update order: %w", err)
	}
	return nil
}

// begin opens the use-case span and returns the function that records its outcome.
func (s *Service) begin(ctx context.Context, useCase, spanName string) (context.Context, func(error)) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCase))
	ctx, span := s.tracer.Start(ctx, spanPrefix+spanName, attribute.String("use_case", useCase))
	start := time.Now()

	return ctx, func(err error) {
		lat := time.Since(start).Seconds()
		outcome, statusText := "success", "OK"
		if err != nil {
			outcome, statusText = "error", string(apperr.KindOf(err))
			if statusText == "" {
				statusText = "INTERNAL"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", outcome))
		s.durHistogram.Observe(lat, observability.L("use_case", useCase))

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
	}
}

func cardOutcome(number string) (status, message string) {
	switch {
	case strings.HasPrefix(number, "4111"), strings.HasPrefix(number, "5555"):
		return dompay.ProviderStatusApproved, MsgCardApproved
	case strings.HasPrefix(number, "4000"):
		return dompay.ProviderStatusDeclined, MsgCardDeclined
	default:
		return dompay.ProviderStatusPending, MsgCardProcessing
	}
}

func lastFour(number string) string {
	if len(number) < 4 {
		return "****"
	}
	return number[len(number)-4:]
}

func shortHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// pixCode renders an EMV-style copy-and-paste code for the payment.
func pixCode(paymentID string, amount decimal.Decimal) string {
	return "00020126580014BR.GOV.BCB.PIX0136" + paymentID +
		"520400005303986540" + amount.StringFixed(2) +
		"5802BR5913LANCHE APP6009SAO PAULO62070503***6304ABCD"
}
