package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Metrics holds the instruments recorded by the RCM components.
type Metrics struct {
	GatewayCalls        metric.Int64Counter
	GatewayCallDuration metric.Float64Histogram
	PaymentTransitions  metric.Int64Counter
	CacheLookups        metric.Int64Counter
	CacheInvalidations  metric.Int64Counter
	DashboardDuration   metric.Float64Histogram
	HTTPServerDuration  metric.Float64Histogram
}

// NewMetrics creates all instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.GatewayCalls, err = meter.Int64Counter(
		"rcm_gateway_calls_total",
		metric.WithDescription("Gateway adapter calls by gateway, operation and outcome"),
	); err != nil {
		return nil, err
	}
	if m.GatewayCallDuration, err = meter.Float64Histogram(
		"rcm_gateway_call_duration_seconds",
		metric.WithDescription("Duration of gateway adapter calls"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.PaymentTransitions, err = meter.Int64Counter(
		"rcm_payment_transitions_total",
		metric.WithDescription("Payment intent state transitions by target status"),
	); err != nil {
		return nil, err
	}
	if m.CacheLookups, err = meter.Int64Counter(
		"rcm_cache_lookups_total",
		metric.WithDescription("Cache lookups by scope and result"),
	); err != nil {
		return nil, err
	}
	if m.CacheInvalidations, err = meter.Int64Counter(
		"rcm_cache_invalidations_total",
		metric.WithDescription("Epoch bumps by scope"),
	); err != nil {
		return nil, err
	}
	if m.DashboardDuration, err = meter.Float64Histogram(
		"rcm_dashboard_compute_duration_seconds",
		metric.WithDescription("Time spent aggregating a dashboard snapshot"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.HTTPServerDuration, err = meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP server request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NoopMetrics returns instruments that record nothing. Used by tests and CLI commands.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

// RecordGatewayCall records one adapter call.
func (m *Metrics) RecordGatewayCall(ctx context.Context, gatewayID, operation, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("gateway", gatewayID),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.GatewayCalls.Add(ctx, 1, attrs)
	m.GatewayCallDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordTransition counts a persisted status change.
func (m *Metrics) RecordTransition(ctx context.Context, status string) {
	m.PaymentTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCacheLookup counts a hit, miss or error for scope.
func (m *Metrics) RecordCacheLookup(ctx context.Context, scope, result string) {
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("result", result),
	))
}

// RecordInvalidation counts an epoch bump for scope.
func (m *Metrics) RecordInvalidation(ctx context.Context, scope string) {
	m.CacheInvalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}

// RecordDashboard records one dashboard aggregation.
func (m *Metrics) RecordDashboard(ctx context.Context, elapsed time.Duration) {
	m.DashboardDuration.Record(ctx, elapsed.Seconds())
}

// InitMeter installs a meter provider backed by the Prometheus exporter.
// The exporter registers with the default Prometheus registry served by MetricsHandler.
func InitMeter(serviceName string, logger *zap.Logger) (*sdkmetric.MeterProvider, metric.Meter, error) {
	res, err := newResource(serviceName)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("metrics initialized with prometheus exporter")
	return mp, mp.Meter(serviceName), nil
}

// InitTracer installs an OTLP gRPC tracer provider. An empty endpoint leaves
// the global no-op provider in place.
func InitTracer(serviceName, endpoint string, logger *zap.Logger) (*sdktrace.TracerProvider, trace.Tracer, error) {
	if endpoint == "" {
		return nil, otel.Tracer(serviceName), nil
	}

	exporter, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, err
	}

	res, err := newResource(serviceName)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing initialized", zap.String("endpoint", endpoint))
	return tp, tp.Tracer(serviceName), nil
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// HTTPMetricsMiddleware records request duration per route.
func HTTPMetricsMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		m.HTTPServerDuration.Record(c.Request.Context(), float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(
				attribute.String("http_method", c.Request.Method),
				attribute.String("http_route", c.FullPath()),
				attribute.String("http_status_code", strconv.Itoa(c.Writer.Status())),
			),
		)
	}
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
}
