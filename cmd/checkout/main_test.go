package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/snackshop/internal/application/provider"
	"github.com/Zhima-Mochi/snackshop/internal/config"
	domcatalog "github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	httppresentation "github.com/Zhima-Mochi/snackshop/internal/presentation/http"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T, shopURL string) *config.Config {
	t.Helper()
	return &config.Config{
		ServiceName:      "snackshop-test",
		ShopAPIURL:       shopURL,
		RequestTimeout:   time.Second,
		PixConfirmDelay:  30 * time.Millisecond,
		PixExpiry:        time.Minute,
		CardSettleDelay:  20 * time.Millisecond,
		NoticeWindow:     time.Minute,
		ConfirmationMode: config.ConfirmationTimer,
		PollInterval:     10 * time.Millisecond,
	}
}

func startShop(t *testing.T) string {
	t.Helper()
	return startShopServer(t).URL
}

func startShopServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := provider.NewService(
		memory.NewCatalogRepository(
			domcatalog.Item{ID: "1", Name: "X-Burger", UnitPrice: decimal.RequireFromString("15.90"), Available: true},
			domcatalog.Item{ID: "2", Name: "Coxinha", UnitPrice: decimal.RequireFromString("6.50"), Available: true},
		),
		memory.NewOrderRepository(),
		memory.NewPaymentRepository(),
		provider.Options{ConfirmAfter: 20 * time.Millisecond},
		nil,
	)
	srv := httptest.NewServer(httppresentation.NewHandler(svc, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

type session struct {
	t    *testing.T
	in   *io.PipeWriter
	out  *syncBuffer
	done chan error
}

func startSession(t *testing.T, cfg *config.Config) *session {
	t.Helper()
	pr, pw := io.Pipe()
	s := &session{t: t, in: pw, out: &syncBuffer{}, done: make(chan error, 1)}
	go func() { s.done <- run(context.Background(), cfg, observability.NopLogger(), pr, s.out) }()
	return s
}

func (s *session) send(line string) {
	s.t.Helper()
	_, err := io.WriteString(s.in, line+"\n")
	require.NoError(s.t, err)
}

func (s *session) waitFor(text string) {
	s.t.Helper()
	require.Eventually(s.t, func() bool { return strings.Contains(s.out.String(), text) },
		2*time.Second, 5*time.Millisecond, "waiting for %q in:\n%s", text, s.out.String())
}

func (s *session) quit() {
	s.t.Helper()
	s.send("quit")
	select {
	case err := <-s.done:
		require.NoError(s.t, err)
	case <-time.After(2 * time.Second):
		s.t.Fatal("checkout did not stop")
	}
}

func TestCardCheckoutCompletesOrder(t *testing.T) {
	s := startSession(t, testConfig(t, startShop(t)))

	s.waitFor("X-Burger")
	s.send("add 1 2")
	s.send("add 2")
	s.waitFor("cart: 3 item(s)")
	s.send("cart")
	s.waitFor("total R$ 38.30")

	s.send("checkout")
	s.waitFor("order #1 created, total R$ 38.30")

	s.send("pay card 4111111111111111 12/30 123 Ana Souza")
	s.waitFor("payment approved")
	s.waitFor("*** Pedido #1 pago com sucesso! ***")
	s.waitFor("cart: 0 item(s)")

	s.send("orders")
	s.waitFor("completed")

	s.send("notice dismiss")
	s.waitFor("no notice")
	s.quit()
}

func TestPixCheckoutSettles(t *testing.T) {
	s := startSession(t, testConfig(t, startShop(t)))

	s.waitFor("Coxinha")
	s.send("add 2")
	s.send("checkout")
	s.waitFor("order #1 created")
	s.send("pay pix")
	s.waitFor("pix: scan or paste")
	s.waitFor("payment settled")
	s.waitFor("Pedido #1 pago com sucesso!")

	s.send("pay pix")
	s.waitFor("no order to pay")
	s.quit()
}

func TestPixCheckoutWithPolling(t *testing.T) {
	cfg := testConfig(t, startShop(t))
	cfg.ConfirmationMode = config.ConfirmationPoll
	s := startSession(t, cfg)

	s.waitFor("X-Burger")
	s.send("add 1")
	s.send("checkout")
	s.send("pay pix")
	s.waitFor("payment settled")
	s.waitFor("Pedido #1 pago com sucesso!")
	s.quit()
}

func TestDeclinedCardAllowsRetry(t *testing.T) {
	s := startSession(t, testConfig(t, startShop(t)))

	s.waitFor("X-Burger")
	s.send("add 1")
	s.send("checkout")
	s.waitFor("order #1 created")
	s.send("pay card 4000000000000002 12/30 123 Ana")
	s.waitFor("payment declined: Cartão recusado")

	s.send("pay card 5555444433331111 12/30 123 Ana")
	s.waitFor("Pedido #1 pago com sucesso!")
	s.quit()
}

func TestShellRejectsBadInput(t *testing.T) {
	s := startSession(t, testConfig(t, startShop(t)))

	s.waitFor("X-Burger")
	s.send("checkout")
	s.waitFor("error: cart is empty")
	s.send("add 99")
	s.waitFor(`no snack "99" on the menu`)
	s.send("pay pix")
	s.waitFor("no order to pay")
	s.send("frobnicate")
	s.waitFor(`unknown command "frobnicate"`)
	s.send("cart")
	s.waitFor("cart is empty")
	s.quit()
}

func TestMenuUnavailable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	s := startSession(t, testConfig(t, url))
	s.waitFor("menu unavailable")
	s.send("add 1")
	s.send("set 1 0")
	s.send("checkout")
	s.waitFor("error: cart is empty")
	s.quit()
	assert.NotContains(t, s.out.String(), "X-Burger")
}

func TestShopOutageIsReportedAsRetryable(t *testing.T) {
	srv := startShopServer(t)
	s := startSession(t, testConfig(t, srv.URL))

	s.waitFor("X-Burger")
	s.send("add 1")
	s.waitFor("cart: 1 item(s)")
	srv.Close()

	s.send("checkout")
	s.waitFor("try again in a moment")
	s.send("cart")
	s.waitFor("1x X-Burger")
	s.quit()
}
