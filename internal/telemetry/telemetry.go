// Package telemetry wires OpenTelemetry tracing and metrics for illsync.
//
// Nothing is exported unless ILL_OTEL_ENABLED=true. When enabled, spans are
// pretty-printed to stderr; metrics go to stderr when ILL_OTEL_STDOUT=true
// and to an OTLP/HTTP collector when OTEL_EXPORTER_OTLP_METRICS_ENDPOINT (or
// OTEL_EXPORTER_OTLP_ENDPOINT) is set.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/steveyegge/illsync"

const (
	stdoutMetricInterval = 15 * time.Second
	otlpMetricInterval   = 30 * time.Second
)

var shutdownFns []func(context.Context) error

// exportSettings is the environment-derived exporter selection.
type exportSettings struct {
	stdoutMetrics bool
	otlpEndpoint  string
}

func settingsFromEnv() exportSettings {
	return exportSettings{
		stdoutMetrics: os.Getenv("ILL_OTEL_STDOUT") == "true",
		otlpEndpoint: firstNonEmpty(
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
			os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		),
	}
}

// Enabled reports whether ILL_OTEL_ENABLED is "true".
func Enabled() bool {
	return os.Getenv("ILL_OTEL_ENABLED") == "true"
}

// Init installs the global tracer and meter providers. With telemetry
// disabled it installs no-op providers.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	spanExp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("telemetry: span exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExp),
	)

	readers, err := metricReaders(ctx, settingsFromEnv())
	if err != nil {
		return errors.Join(fmt.Errorf("telemetry: metrics: %w", err), tp.Shutdown(ctx))
	}
	mopts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		mopts = append(mopts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(mopts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, tp.Shutdown, mp.Shutdown)
	return nil
}

func metricReaders(ctx context.Context, s exportSettings) ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader
	if s.stdoutMetrics {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(stdoutMetricInterval)))
	}
	if s.otlpEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, s.otlpEndpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter for %s: %w", s.otlpEndpoint, err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(otlpMetricInterval)))
	}
	return readers, nil
}

// Tracer returns the named tracer from the global provider. An empty name
// means the illsync scope.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns the named meter from the global provider.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops the providers installed by Init.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
