// Command checkout is a terminal front end for the snack shop: it loads the menu, builds a cart,
// submits it as an order and drives the payment session against a shop API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcart "github.com/Zhima-Mochi/snackshop/internal/application/cart"
	appcatalog "github.com/Zhima-Mochi/snackshop/internal/application/catalog"
	apporder "github.com/Zhima-Mochi/snackshop/internal/application/order"
	apppay "github.com/Zhima-Mochi/snackshop/internal/application/payment"
	"github.com/Zhima-Mochi/snackshop/internal/config"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/confirmation"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/notice"
	infraobs "github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/shopapi"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/logging"
	workerpresentation "github.com/Zhima-Mochi/snackshop/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultLogFile = "logs/checkout.log"

func main() {
	configFile := pflag.StringP("config", "c", "", "optional .env file with settings")
	shopURL := pflag.String("shop", "", "shop API base url (overrides SHOP_API_URL)")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *shopURL != "" {
		cfg.ShopAPIURL = *shopURL
	}
	if cfg.LogFile == "" {
		cfg.LogFile = defaultLogFile
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service:  cfg.ServiceName + "-checkout",
		Env:      cfg.Env,
		Level:    cfg.LogLevel,
		File:     cfg.LogFile,
		FileOnly: true,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zaplogger.New(baseLogger), os.Stdin, os.Stdout); err != nil {
		baseLogger.Error("checkout_failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the checkout against cfg.ShopAPIURL and serves commands from in until quit.
func run(ctx context.Context, cfg *config.Config, logger observability.Logger, in io.Reader, out io.Writer) error {
	counters, histograms := prometrics.Instruments(prometrics.New(prometheus.NewRegistry(), "", ""))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)

	loc, err := cfg.ShopAPILocation()
	if err != nil {
		return err
	}
	client, err := shopapi.New(shopapi.Options{
		BaseURL:    cfg.ShopAPIURL,
		Timeout:    cfg.RequestTimeout,
		Credential: shopapi.SessionCookie{Value: cfg.SessionCookie},
		Location:   loc,
	}, tel)
	if err != nil {
		return err
	}

	var confirm apppay.ConfirmationChannel = confirmation.Timer{Delay: cfg.PixConfirmDelay}
	if cfg.ConfirmationMode == config.ConfirmationPoll {
		confirm = confirmation.Poller{Checker: client, Interval: cfg.PollInterval, Logger: logger}
	}

	bus := outbox.NewBus(logger)
	bus.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		bus.Stop(stopCtx)
	}()

	cart := appcart.NewStore()
	history := memory.NewOrderRepository()
	board := notice.NewBoard(logger)
	reconciler := apporder.NewReconciler(cart, history, board, cfg.NoticeWindow, tel)
	workerpresentation.NewSettlementWorker(bus, reconciler, tel).Start()

	sh := &shell{
		catalog: appcatalog.NewService(client, tel),
		cart:    cart,
		submit:  apporder.NewSubmitOrderUseCase(client, history, tel),
		history: apporder.NewListOrdersUseCase(history, tel),
		orch:    apppay.NewOrchestrator(client, confirm, bus, apppay.Options{CardSettleDelay: cfg.CardSettleDelay}, tel),
		notices: board,
		out:     out,
	}
	board.OnShow(func(n notice.Notice) { sh.say("*** %s ***", n.Message) })
	unsubscribe := cart.Subscribe(func(snap appcart.Snapshot) {
		items := 0
		for _, l := range snap.Lines {
			items += l.Quantity
		}
		sh.say("cart: %d item(s)", items)
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sh.watchSessions(gctx) })
	g.Go(func() error {
		defer cancel()
		return sh.run(gctx, in)
	})
	err = g.Wait()
	sh.orch.Dismiss()
	return err
}
