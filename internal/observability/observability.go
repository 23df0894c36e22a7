// Package observability wires OpenTelemetry tracing and metrics for the engine.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"restructure-engine/internal/model"
)

const instrumentationName = "restructure-engine"

// Config configures the OpenTelemetry providers. An empty OTLPEndpoint
// leaves the global no-op providers in place.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	Insecure       bool
	SampleRate     float64
	BatchTimeout   time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "restructure-engine",
		ServiceVersion: "1.0.0",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Insecure:       true,
	}
}

// Provider owns the trace and metric providers and the engine's instruments.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	logger         *slog.Logger

	requests    metric.Int64Counter
	errors      metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
	warnings    metric.Int64Counter
}

// New installs OTLP exporters when an endpoint is configured.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := slog.Default().With("component", "observability")

	if cfg.OTLPEndpoint == "" {
		logger.InfoContext(ctx, "observability disabled")
		return newProvider(otel.GetTracerProvider(), otel.GetMeterProvider(), logger)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p, err := newProvider(tp, mp, logger)
	if err != nil {
		return nil, err
	}
	p.tracerProvider = tp
	p.meterProvider = mp

	logger.InfoContext(ctx, "observability initialized",
		"service", cfg.ServiceName,
		"endpoint", cfg.OTLPEndpoint,
		"sample_rate", cfg.SampleRate,
	)
	return p, nil
}

// NewNoop returns a provider backed by the global no-op providers.
func NewNoop() *Provider {
	p, err := newProvider(otel.GetTracerProvider(), otel.GetMeterProvider(), slog.Default())
	if err != nil {
		panic(err)
	}
	return p
}

func newProvider(tp trace.TracerProvider, mp metric.MeterProvider, logger *slog.Logger) (*Provider, error) {
	meter := mp.Meter(instrumentationName)
	p := &Provider{
		tracer: tp.Tracer(instrumentationName),
		logger: logger,
	}

	var err error
	if p.requests, err = meter.Int64Counter("protection.operations.total",
		metric.WithDescription("Engine operations processed"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, err
	}
	if p.errors, err = meter.Int64Counter("protection.errors.total",
		metric.WithDescription("Engine operations that returned an error"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if p.duration, err = meter.Float64Histogram("protection.operation.duration",
		metric.WithDescription("Engine operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	); err != nil {
		return nil, err
	}
	if p.transitions, err = meter.Int64Counter("protection.transitions.total",
		metric.WithDescription("Plan state transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, err
	}
	if p.warnings, err = meter.Int64Counter("protection.scenario.warnings.total",
		metric.WithDescription("Scenario rejection reasons by code"),
		metric.WithUnit("{warning}"),
	); err != nil {
		return nil, err
	}
	return p, nil
}

// Shutdown flushes and stops the exporters, if any.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// TrackOperation starts a span and counts the operation. The returned
// function ends both and must be called with the operation's error.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	opAttrs := append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)
	p.requests.Add(ctx, 1, metric.WithAttributes(opAttrs...))

	return ctx, func(err error) {
		p.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(opAttrs...))
		if err != nil {
			span.RecordError(err)
			errAttrs := append(opAttrs, attribute.String("error.type", fmt.Sprintf("%T", err)))
			p.errors.Add(ctx, 1, metric.WithAttributes(errAttrs...))
		}
		span.End()
	}
}

// RecordTransition counts one successful state change.
func (p *Provider) RecordTransition(ctx context.Context, from, to model.State, action model.Action) {
	p.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("action", string(action)),
	))
}

// RecordWarnings counts the rejection reasons of a generated scenario set.
func (p *Provider) RecordWarnings(ctx context.Context, scenarios []model.Scenario) {
	for _, s := range scenarios {
		for _, w := range s.Warnings {
			p.warnings.Add(ctx, 1, metric.WithAttributes(
				attribute.String("scenario_type", s.Type.String()),
				attribute.String("code", string(w.Code)),
			))
		}
	}
}
