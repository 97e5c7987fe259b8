package provider

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	domcatalog "github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T, clock *fakeClock) (*Service, *memory.OrderRepository) {
	t.Helper()
	catalog := memory.NewCatalogRepository(
		domcatalog.Item{ID: "1", Name: "X-Burger", UnitPrice: decimal.RequireFromString("15.90"), Available: true},
		domcatalog.Item{ID: "2", Name: "Coxinha", UnitPrice: decimal.RequireFromString("6.50"), Available: true},
		domcatalog.Item{ID: "3", Name: "Esgotado", UnitPrice: decimal.RequireFromString("1.00"), Available: false},
	)
	orders := memory.NewOrderRepository()
	svc := NewService(catalog, orders, memory.NewPaymentRepository(), Options{
		ConfirmAfter: 10 * time.Second,
		PixExpiry:    30 * time.Minute,
		Now:          clock.Now,
	}, nil)
	return svc, orders
}

func TestListSnacksHidesUnavailable(t *testing.T) {
	svc, _ := newService(t, &fakeClock{now: time.Now()})
	items, err := svc.ListSnacks(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCreateOrderPricesServerSide(t *testing.T) {
	svc, _ := newService(t, &fakeClock{now: time.Now()})

	o, err := svc.CreateOrder(context.Background(), []OrderItem{{ItemID: "1", Quantity: 2}, {ItemID: "2", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, "1", o.ID)
	assert.Equal(t, "38.3", o.TotalAmount.String())

	o2, err := svc.CreateOrder(context.Background(), []OrderItem{{ItemID: "2", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, "2", o2.ID)
}

func TestCreateOrderErrors(t *testing.T) {
	svc, _ := newService(t, &fakeClock{now: time.Now()})
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.CreateOrder(ctx, []OrderItem{{ItemID: "1", Quantity: 0}})
	assert.Equal(t, MsgInvalidQuantity, apperr.UserMessage(err))

	_, err = svc.CreateOrder(ctx, []OrderItem{{ItemID: "99", Quantity: 1}})
	assert.Equal(t, MsgItemNotFound, apperr.UserMessage(err))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusNotFound, ae.Status)
}

func TestPixPaymentLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc, orders := newService(t, clock)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, []OrderItem{{ItemID: "1", Quantity: 1}})
	require.NoError(t, err)

	rec, err := svc.CreatePayment(ctx, PaymentInput{OrderID: o.ID, Method: dompay.MethodInstantTransfer})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.Payload.PaymentID, "pix_"))
	assert.Len(t, rec.Payload.PaymentID, len("pix_")+16)
	assert.Contains(t, rec.Payload.QRCode, "15.90")
	assert.True(t, clock.Now().Add(30*time.Minute).Equal(rec.Payload.ExpiresAt))

	status, err := svc.PaymentStatus(ctx, rec.Payload.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, dompay.ProviderStatusPending, status.Payload.Status)

	clock.Advance(10 * time.Second)
	status, err = svc.PaymentStatus(ctx, rec.Payload.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, dompay.ProviderStatusApproved, status.Payload.Status)

	stored, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted())

	_, err = svc.CreatePayment(ctx, PaymentInput{OrderID: o.ID, Method: dompay.MethodInstantTransfer})
	assert.Equal(t, MsgOrderPaid, apperr.UserMessage(err))
}

func TestPixPaymentExpires(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	catalog := memory.NewCatalogRepository(domcatalog.Item{ID: "1", UnitPrice: decimal.NewFromInt(5), Available: true})
	svc := NewService(catalog, memory.NewOrderRepository(), memory.NewPaymentRepository(), Options{
		ConfirmAfter: time.Hour,
		PixExpiry:    time.Minute,
		Now:          clock.Now,
	}, nil)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, []OrderItem{{ItemID: "1", Quantity: 1}})
	require.NoError(t, err)
	rec, err := svc.CreatePayment(ctx, PaymentInput{OrderID: o.ID, Method: dompay.MethodInstantTransfer})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	status, err := svc.PaymentStatus(ctx, rec.Payload.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, dompay.ProviderStatusExpired, status.Payload.Status)
}

func TestCardOutcomes(t *testing.T) {
	tests := []struct {
		number  string
		status  string
		message string
	}{
		{"4111 1111 1111 1111", dompay.ProviderStatusApproved, MsgCardApproved},
		{"5555444433331111", dompay.ProviderStatusApproved, MsgCardApproved},
		{"4000000000000002", dompay.ProviderStatusDeclined, MsgCardDeclined},
		{"6011000000000004", dompay.ProviderStatusPending, MsgCardProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			svc, _ := newService(t, &fakeClock{now: time.Now()})
			ctx := context.Background()
			o, err := svc.CreateOrder(ctx, []OrderItem{{ItemID: "2", Quantity: 1}})
			require.NoError(t, err)

			rec, err := svc.CreatePayment(ctx, PaymentInput{
				OrderID: o.ID,
				Method:  dompay.MethodCard,
				Card:    &dompay.CardData{Number: tt.number, Expiry: "12/30", CVV: "123", Holder: "Ana"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.status, rec.Payload.Status)
			assert.Equal(t, tt.message, rec.Payload.Message)
			assert.True(t, strings.HasPrefix(rec.Payload.PaymentID, "cc_"))
			assert.Equal(t, tt.number[len(tt.number)-4:], rec.Payload.CardLastFour)
		})
	}
}

func TestCreatePaymentErrors(t *testing.T) {
	svc, _ := newService(t, &fakeClock{now: time.Now()})
	ctx := context.Background()

	_, err := svc.CreatePayment(ctx, PaymentInput{OrderID: "404", Method: dompay.MethodInstantTransfer})
	assert.Equal(t, MsgOrderNotFound, apperr.UserMessage(err))

	o, err := svc.CreateOrder(ctx, []OrderItem{{ItemID: "1", Quantity: 1}})
	require.NoError(t, err)

	_, err = svc.CreatePayment(ctx, PaymentInput{OrderID: o.ID, Method: dompay.Method("boleto")})
	assert.Equal(t, MsgInvalidMethod, apperr.UserMessage(err))

	_, err = svc.CreatePayment(ctx, PaymentInput{OrderID: o.ID, Method: dompay.MethodCard})
	assert.Equal(t, MsgCardRequired, apperr.UserMessage(err))

	_, err = svc.PaymentStatus(ctx, "pix_missing")
	assert.Equal(t, MsgPaymentNotFound, apperr.UserMessage(err))
}
