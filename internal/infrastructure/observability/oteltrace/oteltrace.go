package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a tracer backed by the global otel TracerProvider.
func New(name string) observability.Tracer {
	if name == "" {
		name = "snackshop"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}

// a no-op provider is installed by default; exporters are wired by setting otel.SetTracerProvider(tp)
