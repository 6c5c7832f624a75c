package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Config struct {
	// Endpoint is the OTLP/HTTP collector, e.g. http://otel-collector:4318.
	// Empty disables tracing.
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	// SampleRatio applies to root spans; children follow their parent.
	SampleRatio float64
}

type exporterTarget struct {
	host     string
	path     string
	insecure bool
}

// parseEndpoint accepts a bare host:port or a URL. Only https endpoints use TLS.
func parseEndpoint(raw string) (exporterTarget, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return exporterTarget{host: strings.TrimRight(raw, "/"), insecure: true}, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return exporterTarget{}, err
	}
	if parsed.Host == "" {
		return exporterTarget{}, fmt.Errorf("otlp endpoint %q has no host", raw)
	}
	target := exporterTarget{host: parsed.Host, insecure: parsed.Scheme != "https"}
	if path := strings.TrimRight(parsed.Path, "/"); path != "" {
		target.path = path
	}
	return target, nil
}

// Init installs the global trace provider. Tracing stays off without an
// endpoint and an unreachable collector never blocks startup; in both cases
// the returned shutdown is a noop.
func Init(ctx context.Context, cfg Config, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		logger.Debug("tracing disabled, no otlp endpoint")
		return noop, nil
	}
	target, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
		return noop, nil
	}

	options := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(target.host),
		otlptracehttp.WithTimeout(3 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if target.insecure {
		options = append(options, otlptracehttp.WithInsecure())
	}
	if target.path != "" {
		options = append(options, otlptracehttp.WithURLPath(target.path))
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exporter, err := otlptracehttp.New(initCtx, options...)
	if err != nil {
		logger.Warn("tracing disabled", slog.String("endpoint", target.host), slog.String("error", err.Error()))
		return noop, nil
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(cfg.ServiceName))}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, err
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger.Info("tracing enabled",
		slog.String("endpoint", target.host),
		slog.String("service", cfg.ServiceName),
		slog.Float64("sampleRatio", ratio),
	)
	return tp.Shutdown, nil
}
