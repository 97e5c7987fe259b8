package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/snackshop/internal/application/provider"
	"github.com/Zhima-Mochi/snackshop/internal/config"
	domcatalog "github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	infraobs "github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/snackshop/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("SNACKSHOP_CONFIG"))
	if err != nil {
		panic(err)
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	counters, histograms := prometrics.Instruments(prometrics.New(prometheus.DefaultRegisterer, "", ""))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), zaplogger.New(baseLogger), counters, histograms)

	svc := provider.NewService(
		memory.NewCatalogRepository(seedSnacks()...),
		memory.NewOrderRepository(),
		memory.NewPaymentRepository(),
		provider.Options{ConfirmAfter: cfg.PixConfirmDelay, PixExpiry: cfg.PixExpiry},
		tel,
	)
	handler := httppresentation.NewHandler(svc, tel)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error",
				zap.Error(err),
			)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error",
			zap.Error(err),
		)
	} else {
		systemLogger.Info("http_server_stopped")
	}
}

func seedSnacks() []domcatalog.Item {
	item := func(id, name, desc, price string) domcatalog.Item {
		return domcatalog.Item{
			ID:          domcatalog.ItemID(id),
			Name:        name,
			Description: desc,
			UnitPrice:   decimal.RequireFromString(price),
			ImageURL:    "/static/snacks/" + id + ".jpg",
			Available:   true,
		}
	}
	return []domcatalog.Item{
		item("1", "X-Burger", "Pão, hambúrguer, queijo e salada", "15.90"),
		item("2", "Coxinha", "Coxinha de frango com catupiry", "6.50"),
		item("3", "Pastel de queijo", "Pastel frito recheado com queijo", "8.00"),
		item("4", "Pão de queijo", "Porção com 6 unidades", "9.90"),
		item("5", "Suco de laranja", "Copo de 400ml", "7.00"),
		item("6", "Açaí na tigela", "500ml com granola e banana", "18.50"),
	}
}
