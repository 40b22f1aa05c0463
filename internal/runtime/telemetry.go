package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/inkvox/inkvox/internal/config"
)

// conversionBuckets spans narration runs from a one-page note to a long
// chapter, in seconds. The default histogram boundaries top out far too low
// for synthesis of book-length documents.
var conversionBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}

// telemetry bundles the process-wide OTel providers: traces go to an OTLP
// collector when one is configured and to stdout otherwise, metrics are
// exposed to Prometheus through the ops HTTP server.
type telemetry struct {
	metrics http.Handler
	closers []func(context.Context) error
}

func newTelemetry(cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.AppName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	t := &telemetry{}

	spans, err := newSpanExporter(cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	tracer := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracer)
	t.closers = append(t.closers, tracer.Shutdown)

	meter, handler := newMeterProvider(res, logger)
	otel.SetMeterProvider(meter)
	t.closers = append(t.closers, meter.Shutdown)
	t.metrics = handler

	return t, nil
}

// Close shuts the providers down in reverse construction order.
func (t *telemetry) Close(ctx context.Context) error {
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newSpanExporter(cfg config.TelemetryConfig, logger *slog.Logger) (sdktrace.SpanExporter, error) {
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		logger.Info("tracing to otlp collector", slog.String("endpoint", endpoint))
		return otlptracegrpc.New(context.Background(), opts...)
	}
	logger.Info("tracing to stdout")
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}

// newMeterProvider builds the Prometheus-backed meter provider and the
// handler the ops server mounts at /metrics. A failed exporter degrades to a
// provider without readers so instrument registration still succeeds; the
// handler is nil in that case.
func newMeterProvider(res *resource.Resource, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler) {
	durations := sdkmetric.NewView(
		sdkmetric.Instrument{Name: "inkvox.conversion.duration"},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
			Boundaries: conversionBuckets,
		}},
	)

	exporter, err := prometheus.New()
	if err != nil {
		logger.Warn("prometheus exporter unavailable, metrics disabled", slog.String("error", err.Error()))
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithView(durations),
		), nil
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
		sdkmetric.WithView(durations),
	), promhttp.Handler()
}
