package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "zyrochat"

func rotatingFile(dir, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger initializes structured logging with rotation.
// Logs go only to the file; the terminal belongs to the chat UI.
func InitLogger(logDir string, debug bool) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	file := rotatingFile(logDir, "zyrochat.log")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	cleanup := func() {
		if err := file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}
	return logger, cleanup, nil
}

// InitTelemetry initializes OpenTelemetry tracing and metrics.
// Traces and metrics are exported to rotating files under logDir.
// When disabled, no-op providers are returned so callers never branch.
func InitTelemetry(ctx context.Context, logDir string, enabled bool) (trace.Tracer, metric.Meter, func(), error) {
	if !enabled {
		return tracenoop.NewTracerProvider().Tracer(serviceName),
			metricnoop.NewMeterProvider().Meter(serviceName),
			func() {}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	tp, closeTraces, err := newTracerProvider(logDir, res)
	if err != nil {
		return nil, nil, nil, err
	}
	mp, closeMetrics, err := newMeterProvider(logDir, res)
	if err != nil {
		closeTraces(context.Background())
		return nil, nil, nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closeMetrics(ctx)
		closeTraces(ctx)
	}

	return tp.Tracer(serviceName), mp.Meter(serviceName), cleanup, nil
}

// shutdownFunc flushes a provider and closes its file
type shutdownFunc func(ctx context.Context)

func newTracerProvider(logDir string, res *resource.Resource) (*sdktrace.TracerProvider, shutdownFunc, error) {
	file := rotatingFile(logDir, "zyrochat_traces.log")
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(file),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp, func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		if err := file.Close(); err != nil {
			slog.Error("failed to close trace file", "error", err)
		}
	}, nil
}

func newMeterProvider(logDir string, res *resource.Resource) (*sdkmetric.MeterProvider, shutdownFunc, error) {
	file := rotatingFile(logDir, "zyrochat_metrics.log")
	exporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(file),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
		sdkmetric.WithResource(res),
	)
	return mp, func(ctx context.Context) {
		if err := mp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown meter provider", "error", err)
		}
		if err := file.Close(); err != nil {
			slog.Error("failed to close metrics file", "error", err)
		}
	}, nil
}
