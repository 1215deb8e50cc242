package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/telehealth-meet"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount    metric.Int64Counter
	RequestDuration metric.Float64Histogram
	MeetingsCreated metric.Int64Counter
	MeetingsReused  metric.Int64Counter
	OrphanedEvents  metric.Int64Counter
	LockContention  metric.Int64Counter
}

// Setup initializes OpenTelemetry tracing, metrics export and Go runtime
// metrics. The returned function flushes and stops both providers.
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set up metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		_ = tracerProvider.Shutdown(ctx)
		_ = meterProvider.Shutdown(ctx)
		return nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics on the global meter provider
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

// NewMetrics creates the application instruments on provider
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(instrumentationName)

	requestCount, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	meetingsCreated, err := meter.Int64Counter(
		"meetings.created.count",
		metric.WithDescription("Number of calendar events created and linked to an encounter"),
	)
	if err != nil {
		return nil, err
	}

	meetingsReused, err := meter.Int64Counter(
		"meetings.reused.count",
		metric.WithDescription("Number of requests answered with an existing meeting link"),
	)
	if err != nil {
		return nil, err
	}

	orphanedEvents, err := meter.Int64Counter(
		"meetings.orphaned.count",
		metric.WithDescription("Number of calendar events left without an encounter link"),
	)
	if err != nil {
		return nil, err
	}

	lockContention, err := meter.Int64Counter(
		"meetings.lock.contention.count",
		metric.WithDescription("Number of meeting creations rejected because the encounter was locked"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
		MeetingsCreated: meetingsCreated,
		MeetingsReused:  meetingsReused,
		OrphanedEvents:  orphanedEvents,
		LockContention:  lockContention,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// RecordRequestMetric records a request count and duration
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordMeetingCreated counts a calendar event linked to an encounter
func RecordMeetingCreated(ctx context.Context, metrics *Metrics) {
	if metrics == nil {
		return
	}
	metrics.MeetingsCreated.Add(ctx, 1)
}

// RecordMeetingReused counts a request served from an existing meeting tag
func RecordMeetingReused(ctx context.Context, metrics *Metrics) {
	if metrics == nil {
		return
	}
	metrics.MeetingsReused.Add(ctx, 1)
}

// RecordOrphanedEvent counts a calendar event that could be neither linked nor deleted
func RecordOrphanedEvent(ctx context.Context, metrics *Metrics, encounterID string) {
	if metrics == nil {
		return
	}
	metrics.OrphanedEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("encounter.id", encounterID)))
}

// RecordLockContention counts a request rejected by the encounter lock
func RecordLockContention(ctx context.Context, metrics *Metrics) {
	if metrics == nil {
		return
	}
	metrics.LockContention.Add(ctx, 1)
}
