// Package observability exposes OpenTelemetry instruments for the checkout
// flow. Metrics are exported through the Prometheus registry that also serves
// the promauto collectors, so a single /metrics endpoint carries both.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "insurance-checkout"

type Observability struct {
	meterProvider *metric.MeterProvider
	tracer        trace.Tracer
	stepCounter   otelmetric.Int64Counter
	stepDuration  otelmetric.Float64Histogram
}

// New registers an otel Prometheus exporter and meter provider.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o, err := newWithMeter(provider.Meter(serviceName))
	if err != nil {
		return nil, err
	}
	o.meterProvider = provider
	return o, nil
}

// NewNoop returns instruments that record nothing. Used in tests and when the
// exporter cannot be registered.
func NewNoop() *Observability {
	o, _ := newWithMeter(noop.NewMeterProvider().Meter(instrumentationName))
	return o
}

func newWithMeter(meter otelmetric.Meter) (*Observability, error) {
	stepCounter, err := meter.Int64Counter(
		"checkout.steps",
		otelmetric.WithDescription("Checkout steps executed"),
	)
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram(
		"checkout.step.duration",
		otelmetric.WithDescription("Checkout step duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		tracer:       otel.Tracer(instrumentationName),
		stepCounter:  stepCounter,
		stepDuration: stepDuration,
	}, nil
}

// StartStep opens a span for a checkout step and returns a function that
// records its outcome. Pass the step's error, or nil on success.
func (o *Observability) StartStep(ctx context.Context, step string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "checkout."+step)

	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
		}
		attrs := otelmetric.WithAttributes(
			attribute.String("step", step),
			attribute.String("status", status),
		)
		o.stepCounter.Add(ctx, 1, attrs)
		o.stepDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
		span.End()
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o.meterProvider == nil {
		return nil
	}
	return o.meterProvider.Shutdown(ctx)
}
