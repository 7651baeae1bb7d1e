// Package telemetry records tool-call spans and metrics with OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ippclub/crates-mcp/internal/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	instrumentationName = "github.com/ippclub/crates-mcp"

	metricCalls    = "crates_mcp.tool.calls"
	metricFailures = "crates_mcp.tool.failures"
	metricDuration = "crates_mcp.tool.duration"
)

// Recorder wraps tool calls in a span and updates the call metrics. A nil
// Recorder is valid and records nothing.
type Recorder struct {
	tracer trace.Tracer

	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram

	reader    *sdkmetric.ManualReader
	shutdowns []func(context.Context) error
	once      sync.Once
}

// New creates a recorder bound to the provided meter and tracer.
func New(meter metric.Meter, tracer trace.Tracer) (*Recorder, error) {
	calls, err := meter.Int64Counter(
		metricCalls,
		metric.WithDescription("Number of tool calls"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		metricFailures,
		metric.WithDescription("Number of tool calls that returned an error result"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		metricDuration,
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return &Recorder{
		tracer:   tracer,
		calls:    calls,
		failures: failures,
		duration: duration,
	}, nil
}

// Setup builds the process recorder. Metrics are kept in memory so the
// diagnostics listener can report call counts. Spans are exported over OTLP
// HTTP only when an endpoint is configured.
func Setup(ctx context.Context, cfg config.Telemetry, version string, logger *zap.Logger) (*Recorder, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", version),
	)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	var (
		tracer    trace.Tracer
		shutdowns = []func(context.Context) error{mp.Shutdown}
	)
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		tracer = tp.Tracer(instrumentationName)
		shutdowns = append(shutdowns, tp.Shutdown)
		logger.Info("exporting traces", zap.String("endpoint", cfg.OTLPEndpoint))
	}

	r, err := New(mp.Meter(instrumentationName), tracer)
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	r.reader = reader
	r.shutdowns = shutdowns
	return r, nil
}

// StartToolCall opens a span for one tools/call. The returned function ends
// it; errKind is empty on success.
func (r *Recorder) StartToolCall(ctx context.Context, tool, sessionID string) (context.Context, func(errKind string)) {
	if r == nil {
		return ctx, func(string) {}
	}

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "tools/call "+tool,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("tool_name", tool),
			attribute.String("session_id", sessionID),
		),
	)

	return ctx, func(errKind string) {
		attrs := []attribute.KeyValue{
			attribute.String("tool_name", tool),
			attribute.Bool("success", errKind == ""),
		}
		if errKind != "" {
			attrs = append(attrs, attribute.String("error_kind", errKind))
		}

		options := metric.WithAttributes(attrs...)
		r.calls.Add(ctx, 1, options)
		r.duration.Record(ctx, time.Since(start).Seconds(), options)

		if errKind != "" {
			r.failures.Add(ctx, 1, metric.WithAttributes(attrs...))
			span.SetAttributes(attribute.String("error_kind", errKind))
			span.SetStatus(codes.Error, errKind)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// CallCounts returns the number of calls seen per tool since start. It is
// empty for a recorder not built by Setup.
func (r *Recorder) CallCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	if r == nil || r.reader == nil {
		return counts, nil
	}

	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != metricCalls {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if tool, ok := dp.Attributes.Value("tool_name"); ok {
					counts[tool.AsString()] += dp.Value
				}
			}
		}
	}
	return counts, nil
}

// Shutdown flushes pending spans and stops the providers.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var err error
	r.once.Do(func() {
		for i := len(r.shutdowns) - 1; i >= 0; i-- {
			if serr := r.shutdowns[i](ctx); serr != nil && err == nil {
				err = serr
			}
		}
	})
	return err
}
