package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ShutdownFunc releases telemetry resources.
type ShutdownFunc func(ctx context.Context) error

// Setup initializes OpenTelemetry with a Prometheus exporter.
// Returns a shutdown function that must be called on exit.
func Setup(ctx context.Context, serviceName string) (ShutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// GatewayMetrics holds all OTel instruments for the gateway services.
type GatewayMetrics struct {
	httpRequestsTotal       otelmetric.Int64Counter
	httpRequestDuration     otelmetric.Float64Histogram
	authValidationsTotal    otelmetric.Int64Counter
	tokenExchangesTotal     otelmetric.Int64Counter
	upstreamCallsTotal      otelmetric.Int64Counter
	upstreamCallDuration    otelmetric.Float64Histogram
	activeSessions          otelmetric.Int64UpDownCounter
	rateLimitDecisionsTotal otelmetric.Int64Counter
}

// NewGatewayMetrics creates and registers all gateway metrics.
func NewGatewayMetrics() (*GatewayMetrics, error) {
	meter := otel.Meter("mcpgateway")
	m := &GatewayMetrics{}
	var err error

	latencyBuckets := otelmetric.WithExplicitBucketBoundaries(
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	)

	if m.httpRequestsTotal, err = meter.Int64Counter("gateway_http_requests_total",
		otelmetric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("creating http_requests_total: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("gateway_http_request_duration_seconds",
		otelmetric.WithDescription("HTTP request duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating http_request_duration: %w", err)
	}
	if m.authValidationsTotal, err = meter.Int64Counter("gateway_auth_validations_total",
		otelmetric.WithDescription("Total access token validations")); err != nil {
		return nil, fmt.Errorf("creating auth_validations_total: %w", err)
	}
	if m.tokenExchangesTotal, err = meter.Int64Counter("gateway_token_exchanges_total",
		otelmetric.WithDescription("Total token exchange attempts")); err != nil {
		return nil, fmt.Errorf("creating token_exchanges_total: %w", err)
	}
	if m.upstreamCallsTotal, err = meter.Int64Counter("gateway_upstream_calls_total",
		otelmetric.WithDescription("Total upstream API calls")); err != nil {
		return nil, fmt.Errorf("creating upstream_calls_total: %w", err)
	}
	if m.upstreamCallDuration, err = meter.Float64Histogram("gateway_upstream_call_duration_seconds",
		otelmetric.WithDescription("Upstream API call duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating upstream_call_duration: %w", err)
	}
	if m.activeSessions, err = meter.Int64UpDownCounter("gateway_active_sessions",
		otelmetric.WithDescription("Currently active MCP sessions")); err != nil {
		return nil, fmt.Errorf("creating active_sessions: %w", err)
	}
	if m.rateLimitDecisionsTotal, err = meter.Int64Counter("gateway_ratelimit_decisions_total",
		otelmetric.WithDescription("Total rate limit decisions")); err != nil {
		return nil, fmt.Errorf("creating ratelimit_decisions_total: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric.
func (m *GatewayMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, durationSec, attrs)
}

// RecordAuthValidation records an access token validation result.
func (m *GatewayMetrics) RecordAuthValidation(ctx context.Context, result string) {
	m.authValidationsTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordTokenExchange records a token exchange attempt.
func (m *GatewayMetrics) RecordTokenExchange(ctx context.Context, result string) {
	m.tokenExchangesTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordUpstreamCall records a call to an upstream API.
func (m *GatewayMetrics) RecordUpstreamCall(ctx context.Context, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(statusAttr(status))
	m.upstreamCallsTotal.Add(ctx, 1, attrs)
	m.upstreamCallDuration.Record(ctx, durationSec, attrs)
}

// SessionOpened increments the active session gauge.
func (m *GatewayMetrics) SessionOpened(ctx context.Context) {
	m.activeSessions.Add(ctx, 1)
}

// SessionClosed decrements the active session gauge.
func (m *GatewayMetrics) SessionClosed(ctx context.Context) {
	m.activeSessions.Add(ctx, -1)
}

// RecordRateLimitDecision records a rate limit decision.
func (m *GatewayMetrics) RecordRateLimitDecision(ctx context.Context, layer, result string) {
	m.rateLimitDecisionsTotal.Add(ctx, 1, otelmetric.WithAttributes(
		layerAttr(layer),
		resultAttr(result),
	))
}
