// Package shopapi is the HTTP client for the shop's catalog, order and payment services.
//
// Every call is made once, with the session credential attached and a per-call timeout.
// Failures are returned as *apperr.Error: transport problems as connectivity errors and
// non-success responses as rejections carrying the server's "error" text verbatim.
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domcart "github.com/Zhima-Mochi/snackshop/internal/domain/cart"
	"github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/snackshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/apperr"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	peerShopAPI = "shop-api"

	EndpointListSnacks    = "GET /api/snacks"
	EndpointCreateOrder   = "POST /api/orders"
	EndpointCreatePayment = "POST /api/payments/create"
	EndpointPaymentStatus = "GET /api/payments/{payment_id}/status"

	DefaultTimeout = 10 * time.Second

	orderRejected   = "could not create order"
	paymentRejected = "could not create payment"
	catalogRejected = "could not load snacks"
	statusRejected  = "could not read payment status"
)

// Credential attaches the user's session to an outgoing request.
type Credential interface {
	Apply(r *http.Request)
}

// SessionCookie sends the session as a cookie. An empty Value sends nothing.
type SessionCookie struct {
	Name  string
	Value string
}

func (c SessionCookie) Apply(r *http.Request) {
	if c.Value == "" {
		return
	}
	name := c.Name
	if name == "" {
		name = "session"
	}
	r.AddCookie(&http.Cookie{Name: name, Value: c.Value})
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Credential Credential
	// Transport is wrapped with otelhttp; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	// Location interprets timestamps sent without a zone offset; nil uses time.Local.
	Location *time.Location
}

type Client struct {
	base    *url.URL
	http    *http.Client
	cred    Credential
	timeout time.Duration
	loc     *time.Location

	log       observability.Logger
	endpoints map[string]endpointMetrics
}

const (
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeTimeout  = "timeout"
	outcomeRejected = "rejected"
)

var endpoints = []string{EndpointListSnacks, EndpointCreateOrder, EndpointCreatePayment, EndpointPaymentStatus}

// endpointMetrics holds the instruments of one endpoint with peer and endpoint labels bound.
type endpointMetrics struct {
	outcomes map[string]observability.BoundCounter // external_requests_total{peer,endpoint,outcome}
	latency  observability.BoundHistogram          // external_request_duration_seconds{peer,endpoint}
}

func bindEndpoints(metrics observability.Metrics) map[string]endpointMetrics {
	counter := metrics.Counter(observability.MExternalRequests)
	histogram := metrics.Histogram(observability.MExternalRequestDuration)

	out := make(map[string]endpointMetrics, len(endpoints))
	for _, ep := range endpoints {
		peer, endpoint := observability.L("peer", peerShopAPI), observability.L("endpoint", ep)
		m := endpointMetrics{
			outcomes: make(map[string]observability.BoundCounter, 4),
			latency:  histogram.Bind(peer, endpoint),
		}
		for _, o := range []string{outcomeSuccess, outcomeError, outcomeTimeout, outcomeRejected} {
			m.outcomes[o] = counter.Bind(peer, endpoint, observability.L("outcome", o))
		}
		out[ep] = m
	}
	return out
}

func New(opts Options, tel observability.Observability) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("shopapi: base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("shopapi: base url %q must be absolute", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	rt := opts.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	log, _, metrics := observability.Resolve(tel)

	return &Client{
		base: base,
		http: &http.Client{
			Transport: otelhttp.NewTransport(rt,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "shopapi " + r.Method + " " + r.URL.Path
				}),
			),
		},
		cred:      opts.Credential,
		timeout:   opts.Timeout,
		loc:       loc,
		log:       log.With(observability.F("component", "shopapi_client")),
		endpoints: bindEndpoints(metrics),
	}, nil
}

// ListItems implements the catalog gateway.
func (c *Client) ListItems(ctx context.Context) ([]catalog.Item, error) {
	var snacks []Snack
	if err := c.do(ctx, http.MethodGet, "/api/snacks", EndpointListSnacks, nil, &snacks, catalogRejected); err != nil {
		return nil, err
	}

	items := make([]catalog.Item, 0, len(snacks))
	for _, s := range snacks {
		available := s.IsAvailable == nil || *s.IsAvailable
		items = append(items, catalog.Item{
			ID:          catalog.ItemID(s.ID),
			Name:        s.Name,
			Description: s.Description,
			UnitPrice:   s.Price.Decimal,
			ImageURL:    s.ImageURL,
			Available:   available,
		})
	}
	return items, nil
}

// CreateOrder implements the order gateway. The order id and total come from the response.
func (c *Client) CreateOrder(ctx context.Context, lines []domcart.Line) (*domorder.Order, error) {
	body := CreateOrderRequest{Items: make([]OrderItem, 0, len(lines))}
	for _, l := range lines {
		body.Items = append(body.Items, OrderItem{SnackID: ID(l.ItemID), Quantity: l.Quantity})
	}

	var resp Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", EndpointCreateOrder, body, &resp, orderRejected); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, apperr.Connectivity(errors.New("shopapi: order response without id"))
	}

	// The server's line prices win when present; otherwise keep what was requested.
	orderLines := make([]domorder.Line, 0, len(lines))
	if len(resp.Items) > 0 {
		for _, it := range resp.Items {
			l := domorder.Line{ItemID: catalog.ItemID(it.SnackID), Quantity: it.Quantity}
			if it.Price != nil {
				l.UnitPrice = it.Price.Decimal
			}
			orderLines = append(orderLines, l)
		}
	} else {
		for _, l := range lines {
			orderLines = append(orderLines, domorder.Line{ItemID: l.ItemID, Quantity: l.Quantity})
		}
	}

	o, err := domorder.New(string(resp.ID), orderLines, resp.TotalAmount.Decimal)
	if err != nil {
		return nil, apperr.Connectivity(fmt.Errorf("shopapi: order response: %w", err))
	}
	return o, nil
}

// Initiate implements the payment gateway.
func (c *Client) Initiate(ctx context.Context, req dompay.InitiateRequest) (*dompay.Payload, error) {
	body := CreatePaymentRequest{
		OrderID:       ID(req.OrderID),
		PaymentMethod: req.Method.WireName(),
	}
	if req.Card != nil {
		body.CardData = &CardData{
			Number: req.Card.Number,
			Expiry: req.Card.Expiry,
			CVV:    req.Card.CVV,
			Name:   req.Card.Holder,
		}
	}

	var resp Payment
	if err := c.do(ctx, http.MethodPost, "/api/payments/create", EndpointCreatePayment, body, &resp, paymentRejected); err != nil {
		return nil, err
	}
	return toPayload(resp, req.Method, c.loc), nil
}

// Status implements the payment status checker.
func (c *Client) Status(ctx context.Context, paymentID string) (string, error) {
	var resp PaymentStatus
	path := "/api/payments/" + url.PathEscape(paymentID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, EndpointPaymentStatus, nil, &resp, statusRejected); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func toPayload(p Payment, requested dompay.Method, loc *time.Location) *dompay.Payload {
	method := requested
	if m, err := dompay.MethodFromWire(p.PaymentMethod); err == nil {
		method = m
	}
	out := &dompay.Payload{
		PaymentID:    p.PaymentID,
		Method:       method,
		Status:       p.Status,
		QRCode:       p.QRCode,
		QRCodeImage:  p.QRCodeImage,
		Instructions: p.Instructions,
		ExpiresAt:    parseTime(p.ExpiresAt, loc),
		CardLastFour: p.CardLastFour,
		Message:      p.Message,
	}
	if p.Amount != nil {
		out.Amount = p.Amount.Decimal
	}
	return out
}

// naiveLayouts carry no zone offset; they are read as wall-clock time in the provider's location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseTime(s string, loc *time.Location) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (c *Client) do(ctx context.Context, method, path, endpoint string, body, out any, fallback string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	outcome := outcomeSuccess
	status := 0
	defer func() {
		if m, ok := c.endpoints[endpoint]; ok {
			m.outcomes[outcome].Add(1)
			m.latency.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			logctx.FromOr(ctx, c.log).Warn("external_request_failed",
				observability.F("peer", peerShopAPI),
				observability.F("endpoint", endpoint),
				observability.F("status", status),
				observability.F("error", err.Error()),
			)
		}
	}()

	var reader io.Reader
	if body != nil {
		buf, merr := json.Marshal(body)
		if merr != nil {
			outcome = outcomeError
			return apperr.Connectivity(fmt.Errorf("shopapi: encode %s: %w", endpoint, merr))
		}
		reader = bytes.NewReader(buf)
	}

	req, rerr := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if rerr != nil {
		outcome = outcomeError
		return apperr.Connectivity(fmt.Errorf("shopapi: build %s: %w", endpoint, rerr))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cred != nil {
		c.cred.Apply(req)
	}

	resp, derr := c.http.Do(req)
	if derr != nil {
		outcome = outcomeError
		if errors.Is(derr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = outcomeTimeout
		}
		return apperr.Connectivity(fmt.Errorf("shopapi: %s: %w", endpoint, derr))
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = outcomeRejected
		var e ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&e)
		return apperr.Rejection(resp.StatusCode, e.Error, fallback)
	}

	if out == nil {
		return nil
	}
	if jerr := json.NewDecoder(resp.Body).Decode(out); jerr != nil {
		outcome = outcomeError
		return apperr.Connectivity(fmt.Errorf("shopapi: decode %s: %w", endpoint, jerr))
	}
	return nil
}
