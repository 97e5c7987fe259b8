package shopapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domcart "github.com/Zhima-Mochi/snackshop/internal/domain/cart"
	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
	infraobs "github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:    srv.URL,
		Timeout:    time.Second,
		Credential: SessionCookie{Name: "session", Value: "abc"},
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(Options{BaseURL: "/api"}, nil)
	assert.Error(t, err)
}

func TestListItems(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/snacks", r.URL.Path)
		if cookie, err := r.Cookie("session"); assert.NoError(t, err) {
			assert.Equal(t, "abc", cookie.Value)
		}

		_, _ = w.Write([]byte(`[
			{"id": 1, "name": "X-Burger", "price": 15.9, "is_available": true},
			{"id": "2", "name": "Suco", "price": "6.50"}
		]`))
	}))

	items, err := c.ListItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.EqualValues(t, "1", items[0].ID)
	assert.True(t, decimal.RequireFromString("15.9").Equal(items[0].UnitPrice))
	assert.EqualValues(t, "2", items[1].ID)
	assert.True(t, items[1].Available)
}

func TestCreateOrder(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Items []map[string]any `json:"items"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Items, 1) {
			assert.Equal(t, float64(3), body.Items[0]["snack_id"], "numeric ids travel as numbers")
			assert.Equal(t, float64(2), body.Items[0]["quantity"])
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 42, "total_amount": 25.00, "status": "pending"}`))
	}))

	o, err := c.CreateOrder(context.Background(), []domcart.Line{{ItemID: "3", Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, "42", o.ID)
	assert.True(t, decimal.NewFromInt(25).Equal(o.TotalAmount))
	require.Len(t, o.Lines, 1)
}

func TestCreateOrderRejectionKeepsServerText(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "Lanche não encontrado"}`))
	}))

	_, err := c.CreateOrder(context.Background(), []domcart.Line{{ItemID: "99", Quantity: 1}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRejection))
	assert.Equal(t, "Lanche não encontrado", apperr.UserMessage(err))
}

func TestRejectionWithoutBodyUsesFallback(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.CreateOrder(context.Background(), []domcart.Line{{ItemID: "1", Quantity: 1}})
	assert.Equal(t, orderRejected, apperr.UserMessage(err))
}

func TestConnectivityFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url, Timeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = c.Initiate(context.Background(), dompay.InitiateRequest{OrderID: "1", Method: dompay.MethodInstantTransfer})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConnectivity))
	assert.Equal(t, apperr.ConnectivityMessage, apperr.UserMessage(err))
}

func TestTimeoutIsConnectivity(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-block }))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	c, err := New(Options{BaseURL: srv.URL, Timeout: 30 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.ListItems(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindConnectivity))
}

func TestInitiatePix(t *testing.T) {
	expires := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CreatePaymentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pix", req.PaymentMethod)
		assert.EqualValues(t, "7", req.OrderID)
		assert.Nil(t, req.CardData)

		_ = json.NewEncoder(w).Encode(Payment{
			PaymentID:     "pix_0123456789abcdef",
			Status:        "pending",
			PaymentMethod: "pix",
			QRCode:        "000201...",
			ExpiresAt:     expires.Format(time.RFC3339),
		})
	}))

	p, err := c.Initiate(context.Background(), dompay.InitiateRequest{OrderID: "7", Method: dompay.MethodInstantTransfer})
	require.NoError(t, err)
	assert.Equal(t, dompay.MethodInstantTransfer, p.Method)
	assert.Equal(t, "000201...", p.QRCode)
	assert.True(t, expires.Equal(p.ExpiresAt))
	assert.False(t, p.Approved())
}

func TestInitiatePixNaiveExpiryUsesProviderLocation(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	expires := time.Now().Add(30 * time.Minute).In(saoPaulo)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Payment{
			PaymentID:     "pix_0123456789abcdef",
			Status:        "pending",
			PaymentMethod: "pix",
			ExpiresAt:     expires.Format("2006-01-02T15:04:05.999999"),
		})
	}))
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, Timeout: time.Second, Location: saoPaulo}, nil)
	require.NoError(t, err)

	p, err := c.Initiate(context.Background(), dompay.InitiateRequest{OrderID: "7", Method: dompay.MethodInstantTransfer})
	require.NoError(t, err)
	assert.WithinDuration(t, expires, p.ExpiresAt, time.Millisecond)
	assert.False(t, p.Expired(time.Now()))
}

func TestParseTime(t *testing.T) {
	utcMinus3 := time.FixedZone("", -3*60*60)

	got := parseTime("2025-01-01T12:00:00", utcMinus3)
	assert.True(t, time.Date(2025, 1, 1, 15, 0, 0, 0, time.UTC).Equal(got))

	got = parseTime("2025-01-01T12:00:00Z", utcMinus3)
	assert.True(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC).Equal(got), "explicit zone wins")

	assert.True(t, parseTime("", utcMinus3).IsZero())
}

func TestCallsRecordEndpointMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters, histograms := prometrics.Instruments(prometrics.New(reg, "", ""))
	tel := infraobs.New(nil, nil, counters, histograms)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/orders" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Lanche não encontrado"}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL}, tel)
	require.NoError(t, err)

	_, err = c.ListItems(context.Background())
	require.NoError(t, err)
	_, err = c.CreateOrder(context.Background(), []domcart.Line{{ItemID: "1", Quantity: 1}})
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "external_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			assert.Equal(t, peerShopAPI, labels["peer"])
			got[labels["endpoint"]+"|"+labels["outcome"]] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, got[EndpointListSnacks+"|success"])
	assert.Equal(t, 1.0, got[EndpointCreateOrder+"|rejected"])
}

func TestInitiateCard(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CreatePaymentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "credit_card", req.PaymentMethod)
		if assert.NotNil(t, req.CardData) {
			assert.Equal(t, "Ana", req.CardData.Name)
		}

		_, _ = w.Write([]byte(`{"payment_id":"cc_1","status":"approved","payment_method":"credit_card","card_last_four":"1111","message":"Pagamento aprovado"}`))
	}))

	p, err := c.Initiate(context.Background(), dompay.InitiateRequest{
		OrderID: "7",
		Method:  dompay.MethodCard,
		Card:    &dompay.CardData{Number: "4111111111111111", Expiry: "12/30", CVV: "123", Holder: "Ana"},
	})
	require.NoError(t, err)
	assert.True(t, p.Approved())
	assert.Equal(t, "1111", p.CardLastFour)
}

func TestStatus(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payments/pix_1/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"payment_id":"pix_1","status":"approved"}`))
	}))

	status, err := c.Status(context.Background(), "pix_1")
	require.NoError(t, err)
	assert.Equal(t, dompay.ProviderStatusApproved, status)
}

func TestWireID(t *testing.T) {
	var id ID
	require.NoError(t, json.Unmarshal([]byte(`12`), &id))
	assert.EqualValues(t, "12", id)
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &id))
	assert.EqualValues(t, "abc", id)

	b, err := json.Marshal(ID("12"))
	require.NoError(t, err)
	assert.Equal(t, `12`, string(b))
	b, err = json.Marshal(ID("abc"))
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(b))

	b, err = json.Marshal(NewAmount(decimal.RequireFromString("15.90")))
	require.NoError(t, err)
	assert.Equal(t, `15.9`, string(b))
}
