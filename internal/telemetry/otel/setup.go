// Package otel provides OpenTelemetry TracerProvider, MeterProvider, and LoggerProvider
// configured with OTLP exporters, with an optional Prometheus pull endpoint for metrics.
package otel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Metrics exporter names accepted in Options.MetricsExporter.
const (
	MetricsOTLP       = "otlp"
	MetricsPrometheus = "prometheus"
	MetricsNone       = "none"
)

// Options configures NewProviders.
type Options struct {
	// Endpoint is the OTLP gRPC collector, e.g. http://localhost:4317. Empty disables OTLP export.
	Endpoint    string
	ServiceName string
	// Insecure disables TLS for https endpoints (OTEL_EXPORTER_OTLP_INSECURE).
	Insecure bool
	// MetricsExporter is otlp, prometheus or none. Prometheus works without an OTLP endpoint.
	MetricsExporter string
	Logger          *slog.Logger
}

// Providers holds the OpenTelemetry providers and a shutdown function.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	// MetricsHandler serves Prometheus text format; nil unless MetricsExporter is prometheus.
	MetricsHandler http.Handler
	Shutdown       func(context.Context) error
}

// NewProviders creates the providers described by opts. Only host:port of the endpoint is used for the
// gRPC dial; https endpoints use TLS unless opts.Insecure is set. With no endpoint and no Prometheus
// exporter, no-op providers are returned and Shutdown is a no-op.
func NewProviders(ctx context.Context, opts Options) (*Providers, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exporter := strings.ToLower(strings.TrimSpace(opts.MetricsExporter))
	if exporter == "" {
		exporter = MetricsOTLP
	}
	switch exporter {
	case MetricsOTLP, MetricsPrometheus, MetricsNone:
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", opts.MetricsExporter)
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	var (
		grpcTarget string
		insecure   bool
	)
	if endpoint != "" {
		// OTLP gRPC expects host:port; parse as URL and use Host only so paths are dropped.
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
		}
		grpcTarget = u.Host
		insecure = opts.Insecure || u.Scheme != "https"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	var shutdownFns []func(context.Context) error
	unwind := func() {
		for i := len(shutdownFns) - 1; i >= 0; i-- {
			_ = shutdownFns[i](ctx)
		}
	}
	p := &Providers{}

	if grpcTarget != "" {
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(grpcTarget)}
		if insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		}
		traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return nil, err
		}
		p.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		)
	} else {
		p.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	}
	shutdownFns = append(shutdownFns, p.TracerProvider.Shutdown)

	meterOpts := []metric.Option{metric.WithResource(res)}
	switch {
	case exporter == MetricsPrometheus:
		registry := prometheus.NewRegistry()
		promExp, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			unwind()
			return nil, err
		}
		meterOpts = append(meterOpts, metric.WithReader(promExp))
		p.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	case exporter == MetricsOTLP && grpcTarget != "":
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(grpcTarget)}
		if insecure {
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			unwind()
			return nil, err
		}
		meterOpts = append(meterOpts, metric.WithReader(metric.NewPeriodicReader(metricExp, metric.WithInterval(10*time.Second))))
	}
	p.MeterProvider = metric.NewMeterProvider(meterOpts...)
	shutdownFns = append(shutdownFns, p.MeterProvider.Shutdown)

	if grpcTarget != "" {
		logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(grpcTarget)}
		if insecure {
			logOpts = append(logOpts, otlploggrpc.WithInsecure())
		}
		logExp, err := otlploggrpc.New(ctx, logOpts...)
		if err != nil {
			unwind()
			return nil, err
		}
		p.LoggerProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
			sdklog.WithResource(res),
		)
	} else {
		p.LoggerProvider = sdklog.NewLoggerProvider(sdklog.WithResource(res))
	}
	shutdownFns = append(shutdownFns, p.LoggerProvider.Shutdown)

	p.Shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(shutdownFns) - 1; i >= 0; i-- {
			if err := shutdownFns[i](ctx); err != nil {
				logger.Error("telemetry shutdown", "error", err)
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return p, nil
}

// SetGlobal sets the global TracerProvider and MeterProvider so instrumentation (e.g. otelgrpc) uses them.
// It does not set a global LoggerProvider; pass LoggerProvider to components that need it.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}
