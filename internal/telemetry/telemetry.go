// Package telemetry installs the real OTel tracer and meter providers
// behind the no-op globals every package's package-level otel.Tracer/
// otel.Meter call already binds to, grounded on the steveyegge-beads dolt
// store's own comment that its instruments "forward to the real provider
// once telemetry.Init() runs" — that package was never itself retrieved, so
// this is that Init.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Shutdown flushes and releases the tracer/meter providers Init installed.
type Shutdown func(ctx context.Context) error

// Init builds an SDK TracerProvider and MeterProvider tagged with
// serviceName and installs both as the global providers, so every existing
// otel.Tracer(name)/otel.Meter(name) call elsewhere in the tree starts
// producing real spans and metrics instead of no-ops. No exporter is wired
// by default — callers that want spans/metrics to leave the process attach
// one via the returned providers' WithBatcher/WithReader before Init is
// called again, or extend this function directly.
func Init(ctx context.Context, serviceName string) (Shutdown, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down tracer provider: %w", err)
		}
		return mp.Shutdown(ctx)
	}, nil
}
