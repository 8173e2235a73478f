// Package telemetry wires OpenTelemetry tracing and Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MeterName scopes every instrument created by Kestrel.
const MeterName = "github.com/opensource-finance/kestrel"

// Providers holds the initialized telemetry pipeline.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Meter          metric.Meter
	Registry       *prometheus.Registry

	handler http.Handler
}

// Init configures the global tracer provider and propagator and, when
// metrics are enabled, a meter provider exporting to a private Prometheus
// registry.
func Init(ctx context.Context, tracing domain.TracingConfig, metrics domain.MetricsConfig, version string) (*Providers, error) {
	serviceName := tracing.ServiceName
	if serviceName == "" {
		serviceName = "kestrel"
	}
	res := resource.NewSchemaless(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	)

	p := &Providers{Meter: noop.NewMeterProvider().Meter(MeterName)}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if tracing.Enabled {
		tp, err := newTracerProvider(tracing, res)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		if tp != nil {
			p.TracerProvider = tp
			otel.SetTracerProvider(tp)
		}
		slog.Info("tracing initialized",
			"exporter", tracing.ExporterType,
			"sample_ratio", tracing.SampleRatio,
		)
	}

	if metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(mp)

		p.MeterProvider = mp
		p.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(version))
		p.Registry = reg
		p.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	return p, nil
}

func newTracerProvider(cfg domain.TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.ExporterType {
	case "stdout", "":
		exp, err := stdouttrace.New()
		if err != nil {
			return nil, err
		}
		exporter = exp
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.ExporterType)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	), nil
}

// Handler serves the Prometheus registry. It is nil when metrics are off.
func (p *Providers) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		errs = append(errs, p.TracerProvider.Shutdown(ctx))
	}
	if p.MeterProvider != nil {
		errs = append(errs, p.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
