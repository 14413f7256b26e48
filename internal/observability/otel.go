// Package observability wires OpenTelemetry traces and metrics, credential
// scrubbing for exported spans, and context-aware structured logging.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ongoingai/traceview/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "traceview"

// Runtime is the process-wide instrumentation handle. A nil or disabled
// Runtime is valid and turns every method into a no-op.
type Runtime struct {
	enabled bool
	metrics instruments
	closers []func(context.Context) error
}

// otlpTarget is the collector address in the host:port form the OTLP HTTP
// exporters expect.
type otlpTarget struct {
	endpoint string
	insecure bool
}

// Setup installs global tracer and meter providers exporting over OTLP/HTTP
// according to cfg. With cfg.Enabled false it returns a disabled Runtime.
func Setup(ctx context.Context, cfg config.OTelConfig, serviceVersion string, logger *slog.Logger) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runtime := &Runtime{}
	if !cfg.Enabled {
		return runtime, nil
	}

	target, err := resolveOTLPTarget(cfg.Endpoint, cfg.Insecure)
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", strings.TrimSpace(cfg.ServiceName)),
		attribute.String("service.version", strings.TrimSpace(serviceVersion)),
	)
	timeout := time.Duration(cfg.ExportTimeoutMS) * time.Millisecond

	if cfg.TracesEnabled {
		tp, err := newTracerProvider(ctx, target, timeout, cfg.SamplingRatio, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		runtime.closers = append(runtime.closers, tp.Shutdown)
	}
	if cfg.MetricsEnabled {
		interval := time.Duration(cfg.MetricExportIntervalMS) * time.Millisecond
		mp, err := newMeterProvider(ctx, target, timeout, interval, res)
		if err != nil {
			_ = runtime.Shutdown(context.Background())
			return nil, err
		}
		otel.SetMeterProvider(mp)
		runtime.closers = append(runtime.closers, mp.Shutdown)
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	runtime.metrics = newInstruments(otel.Meter(instrumentationName), logger)
	runtime.enabled = true
	if logger != nil {
		logger.Info("opentelemetry enabled",
			"otel_endpoint", target.endpoint,
			"otel_traces_enabled", cfg.TracesEnabled,
			"otel_metrics_enabled", cfg.MetricsEnabled,
			"otel_sampling_ratio", cfg.SamplingRatio,
		)
	}
	return runtime, nil
}

func newTracerProvider(ctx context.Context, target otlpTarget, timeout time.Duration, ratio float64, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(target.endpoint),
		otlptracehttp.WithTimeout(timeout),
	}
	if target.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize otel trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(newScrubbingExporter(exporter)),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(ctx context.Context, target otlpTarget, timeout, interval time.Duration, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(target.endpoint),
		otlpmetrichttp.WithTimeout(timeout),
	}
	if target.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize otel metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(interval),
		sdkmetric.WithTimeout(timeout),
	)
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
}

// resolveOTLPTarget accepts either host:port or an http(s) URL. A URL scheme
// decides transport security and overrides the insecure flag.
func resolveOTLPTarget(raw string, insecure bool) (otlpTarget, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return otlpTarget{}, errors.New("observability.otel.endpoint must not be empty")
	}
	if !strings.Contains(endpoint, "://") {
		return otlpTarget{endpoint: endpoint, insecure: insecure}, nil
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return otlpTarget{}, fmt.Errorf("parse observability.otel.endpoint: %w", err)
	}
	if parsed.Host == "" {
		return otlpTarget{}, fmt.Errorf("observability.otel.endpoint must include host (got %q)", raw)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http":
		return otlpTarget{endpoint: parsed.Host, insecure: true}, nil
	case "https":
		return otlpTarget{endpoint: parsed.Host}, nil
	default:
		return otlpTarget{}, fmt.Errorf("observability.otel.endpoint scheme must be http or https when provided (got %q)", parsed.Scheme)
	}
}

// Enabled reports whether OpenTelemetry instrumentation is active.
func (r *Runtime) Enabled() bool {
	return r != nil && r.enabled
}

// StartSpan starts an internal span for a unit of trace viewer work. The
// returned span is a no-op when instrumentation is disabled.
func (r *Runtime) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.Enabled() {
		return ctx, noop.Span{}
	}
	return otel.Tracer(instrumentationName).Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span oteltrace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Shutdown flushes exporters in reverse setup order.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}
	return errors.Join(errs...)
}
