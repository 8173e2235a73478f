package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service instruments.
type Metrics struct {
	analysisRequests metric.Int64Counter
	analysisDuration metric.Float64Histogram
	httpRequests     metric.Int64Counter
	httpDuration     metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.analysisRequests, err = meter.Int64Counter("kestrel_analysis_requests",
		metric.WithDescription("Analysis operations by outcome"),
	); err != nil {
		return nil, err
	}
	if m.analysisDuration, err = meter.Float64Histogram("kestrel_analysis_duration",
		metric.WithDescription("Analysis operation latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.httpRequests, err = meter.Int64Counter("kestrel_http_requests",
		metric.WithDescription("HTTP requests by route and status"),
	); err != nil {
		return nil, err
	}
	if m.httpDuration, err = meter.Float64Histogram("kestrel_http_duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordAnalysis counts one analysis operation. The outcome label is
// "ok" or the error code of err.
func (m *Metrics) RecordAnalysis(ctx context.Context, op string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.ErrorCode(err)
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	m.analysisRequests.Add(ctx, 1, attrs)
	m.analysisDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordHTTP counts one served request. route is the matched chi pattern.
func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, d.Seconds(), attrs)
}
