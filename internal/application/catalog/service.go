package catalog

import (
	"context"
	"time"

	domain "github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

const (
	catalogService     = "catalog-service"
	useCaseCatalogLoad = "catalog.load"
	spanPrefix         = "UC."
	loadKey            = "catalog"
)

// Gateway lists the purchasable items offered by the shop.
type Gateway interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
}

type Service struct {
	gateway Gateway
	loads   singleflight.Group // concurrent loads share one fetch
	tracer  observability.Tracer
	log     observability.Logger

	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewService(gateway Gateway, tel observability.Observability) *Service {
	log, tracer, metrics := observability.Resolve(tel)
	return &Service{
		gateway:      gateway,
		tracer:       tracer,
		log:          log.With(observability.F("service", catalogService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

// Load fetches the catalog. A failed fetch yields an empty catalog; it is logged, not retried.
func (s *Service) Load(ctx context.Context) domain.Catalog {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseCatalogLoad))

	ctx, span := s.tracer.Start(ctx, spanPrefix+"LoadCatalog",
		attribute.String("use_case", useCaseCatalogLoad),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var (
		items []domain.Item
		err   error
	)

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCaseCatalogLoad),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCaseCatalogLoad))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
			observability.F("items", len(items)),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	// shared by every waiting caller, so one caller's cancellation must not end it
	fetchCtx := context.WithoutCancel(ctx)
	v, err, shared := s.loads.Do(loadKey, func() (any, error) {
		return s.gateway.ListItems(fetchCtx)
	})
	span.SetAttributes(attribute.Bool("catalog.shared", shared))
	if err != nil {
		outcome, statusText = "error", "CATALOG_UNAVAILABLE"
		items = nil
		return domain.New(nil)
	}
	items = v.([]domain.Item)
	span.SetAttributes(attribute.Int("catalog.items", len(items)))
	return domain.New(items)
}
