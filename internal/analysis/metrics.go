package analysis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thebtf/nurturenote/internal/analysis"

const (
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeDegraded = "degraded"
)

// Metrics instruments the analysis pipeline.
type Metrics struct {
	requests      metric.Int64Counter
	fallbacks     metric.Int64Counter
	auditFailures metric.Int64Counter
	duration      metric.Float64Histogram
}

// NewMetrics registers instruments on meter. A nil meter uses the global provider,
// which records nothing until an SDK is installed.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &Metrics{}

	var err error
	if m.requests, err = meter.Int64Counter("nurturenote.analysis.requests",
		metric.WithDescription("Analysis requests by engine and outcome")); err != nil {
		return nil, fmt.Errorf("register requests counter: %w", err)
	}
	if m.fallbacks, err = meter.Int64Counter("nurturenote.analysis.fallbacks",
		metric.WithDescription("Single-shot failures that fell back to a threaded run")); err != nil {
		return nil, fmt.Errorf("register fallbacks counter: %w", err)
	}
	if m.auditFailures, err = meter.Int64Counter("nurturenote.audit.failures",
		metric.WithDescription("Audit records that could not be written")); err != nil {
		return nil, fmt.Errorf("register audit failures counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("nurturenote.analysis.duration",
		metric.WithDescription("Upstream analysis latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("register duration histogram: %w", err)
	}
	return m, nil
}

func (m *Metrics) recordRequest(ctx context.Context, engine, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("outcome", outcome),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) recordFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1)
}

func (m *Metrics) recordAuditFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.auditFailures.Add(ctx, 1)
}
