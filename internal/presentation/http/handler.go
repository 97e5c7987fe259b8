package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/snackshop/internal/application/provider"
	domcatalog "github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/snackshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/shopapi"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/apperr"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	svc *provider.Service
	log observability.Logger

	httpRequests observability.Counter   // http_requests_total{method,route,status}
	httpDuration observability.Histogram // http_request_duration_seconds{method,route,status}
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	currencyBRL          = "BRL"

	msgBadRequest = "Requisição inválida"
	msgInternal   = "Erro interno do servidor"
)

func NewHandler(svc *provider.Service, tel observability.Observability) *Handler {
	log, _, metrics := observability.Resolve(tel)
	return &Handler{
		svc:          svc,
		log:          log.With(observability.F("component", componentHTTPHandler)),
		httpRequests: metrics.Counter(observability.MHTTPRequests),
		httpDuration: metrics.Histogram(observability.MHTTPRequestDuration),
	}
}

// Router wires every route behind: Trace → request logger → HTTP metrics → access log → handler.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		h.withTrace,
		ObservabilityMiddleware(h.log, func(r *http.Request) string {
			return r.Header.Get(headerRequestID)
		}),
		h.withHTTPMetrics,
		h.withAccessLog,
	)

	r.Get("/health", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/snacks", h.handleListSnacks)
		r.Get("/orders", h.handleListOrders)
		r.Post("/orders", h.handleCreateOrder)
		r.Post("/payments/create", h.handleCreatePayment)
		r.Get("/payments/{paymentID}/status", h.handlePaymentStatus)
	})
	return r
}

func (h *Handler) handleListSnacks(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListSnacks(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]shopapi.Snack, 0, len(items))
	for _, it := range items {
		available := it.Available
		out = append(out, shopapi.Snack{
			ID:          shopapi.ID(it.ID),
			Name:        it.Name,
			Description: it.Description,
			Price:       shopapi.NewAmount(it.UnitPrice),
			ImageURL:    it.ImageURL,
			IsAvailable: &available,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]shopapi.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, toWireOrder(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req shopapi.CreateOrderRequest
	if err := decodeJSON(r.Context(), r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	items := make([]provider.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, provider.OrderItem{ItemID: domcatalog.ItemID(it.SnackID), Quantity: it.Quantity})
	}
	o, err := h.svc.CreateOrder(r.Context(), items)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWireOrder(o))
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req shopapi.CreatePaymentRequest
	if err := decodeJSON(r.Context(), r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	method, err := dompay.MethodFromWire(req.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, provider.MsgInvalidMethod)
		return
	}
	in := provider.PaymentInput{OrderID: string(req.OrderID), Method: method}
	if req.CardData != nil {
		in.Card = &dompay.CardData{
			Number: req.CardData.Number,
			Expiry: req.CardData.Expiry,
			CVV:    req.CardData.CVV,
			Holder: req.CardData.Name,
		}
	}

	rec, err := h.svc.CreatePayment(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWirePayment(rec))
}

func (h *Handler) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.PaymentStatus(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := shopapi.PaymentStatus{PaymentID: rec.Payload.PaymentID, Status: rec.Payload.Status}
	if rec.Payload.Approved() {
		out.PaidAt = time.Now().UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func toWireOrder(o *domorder.Order) shopapi.Order {
	items := make([]shopapi.OrderItem, 0, len(o.Lines))
	for _, l := range o.Lines {
		price := shopapi.NewAmount(l.UnitPrice)
		items = append(items, shopapi.OrderItem{SnackID: shopapi.ID(l.ItemID), Quantity: l.Quantity, Price: &price})
	}
	status := "pending"
	if o.IsCompleted() {
		status = "paid"
	}
	return shopapi.Order{
		ID:          shopapi.ID(o.ID),
		TotalAmount: shopapi.NewAmount(o.TotalAmount),
		Status:      status,
		Items:       items,
		CreatedAt:   o.CreatedAt.Format(time.RFC3339),
	}
}

func toWirePayment(rec *dompay.Record) shopapi.Payment {
	p := rec.Payload
	amount := shopapi.NewAmount(p.Amount)
	out := shopapi.Payment{
		PaymentID:     p.PaymentID,
		Status:        p.Status,
		PaymentMethod: p.Method.WireName(),
		Amount:        &amount,
		Currency:      currencyBRL,
		QRCode:        p.QRCode,
		QRCodeImage:   p.QRCodeImage,
		Instructions:  p.Instructions,
		CardLastFour:  p.CardLastFour,
		Message:       p.Message,
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
	}
	if !p.ExpiresAt.IsZero() {
		out.ExpiresAt = p.ExpiresAt.Format(time.RFC3339)
	}
	return out
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routePattern(r)),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
// The span is renamed to the matched route template once routing is done.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("snackshop.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(parentCtx,
			r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		r = r.WithContext(ctx)
		next.ServeHTTP(w, r)

		if route := routePattern(r); route != unknownRoute {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
	})
}

// withHTTPMetrics records RED-ish HTTP metrics using injected instruments.
// DO NOT create metrics inside the middleware.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routePattern(r)),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		h.httpRequests.Add(1, labels...)
		h.httpDuration.Observe(time.Since(start).Seconds(), labels...)
	})
}

func decodeJSON(ctx context.Context, r *http.Request, dst any) error {
	_ = ctx
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, shopapi.ErrorResponse{Error: msg})
}

// writeDomainError renders user-facing errors verbatim; anything else is logged and hidden.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		status := ae.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		writeError(w, status, ae.Message)
		return
	}
	logctx.FromOr(r.Context(), h.log).Error("http_internal_error", observability.F("error", err.Error()))
	writeError(w, http.StatusInternalServerError, msgInternal)
}

const unknownRoute = "unknown"

// routePattern returns chi's matched route template, a low-cardinality label.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unknownRoute
	}
	if p := rctx.RoutePattern(); p != "" && !strings.HasSuffix(p, "/*") {
		return p
	}
	return unknownRoute
}
