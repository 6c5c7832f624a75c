package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "github.com/t3m14/tours-sub000/internal/api/http"
	"github.com/t3m14/tours-sub000/internal/app"
	"github.com/t3m14/tours-sub000/internal/cache"
	"github.com/t3m14/tours-sub000/internal/metrics"
	"github.com/t3m14/tours-sub000/internal/providers/tourvisor"
	"github.com/t3m14/tours-sub000/internal/search"
	"github.com/t3m14/tours-sub000/internal/telemetry"
)

const serviceName = "tours-search"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
		SampleRatio:    cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("tourvisorBaseURL", cfg.TourvisorBaseURL),
		slog.Bool("hasTourvisorCredentials", cfg.TourvisorLogin != "" && cfg.TourvisorPass != ""),
		slog.Duration("remoteTimeout", cfg.RemoteTimeout),
		slog.Int("remoteRPS", cfg.RemoteRPS),
		slog.Int("retryAttempts", cfg.RetryAttempts),
		slog.Duration("pollInterval", cfg.PollInterval),
		slog.Duration("maxMonitorLifetime", cfg.MaxMonitorLifetime),
		slog.Bool("closeOnError", cfg.CloseOnError),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Any("allowedOrigins", cfg.AllowedOrigins),
	)
	if cfg.TourvisorLogin == "" || cfg.TourvisorPass == "" {
		logger.Warn("tourvisor credentials are not configured, remote calls are expected to fail")
	}

	store, closeStore := buildCache(cfg, logger)
	defer closeStore()

	client := tourvisor.NewClient(tourvisor.Config{
		BaseURL:  cfg.TourvisorBaseURL,
		Login:    cfg.TourvisorLogin,
		Password: cfg.TourvisorPass,
		Client: &http.Client{
			Timeout:   cfg.RemoteTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Retry:             cfg.RetryConfig(),
		RequestsPerSecond: float64(cfg.RemoteRPS),
		Logger:            logger,
	})

	registry := search.NewRegistry(client,
		search.WithLogger(logger.With(slog.String("component", "registry"))),
		search.WithMonitorConfig(cfg.MonitorConfig()),
	)

	handler := apihttp.NewServer(client, registry,
		apihttp.WithLogger(logger),
		apihttp.WithCache(store),
		apihttp.WithAllowedOrigins(cfg.AllowedOrigins),
		apihttp.WithSearchParamsTTL(cfg.SearchParamsTTL),
		apihttp.WithResultsTTL(cfg.CacheTTL),
		apihttp.WithDefaultPageSize(cfg.DefaultPageSize),
		apihttp.WithRateLimit(float64(cfg.APIRateLimit), cfg.APIRateBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WebSocket sessions outlive any sane write timeout; the session sets its own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("tours search service started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("search monitors did not stop in time", slog.String("error", err.Error()))
	}
	logger.Info("tours search service stopped")
}

// buildCache connects to redis when configured and falls back to an
// in-process cache otherwise.
func buildCache(cfg app.Config, logger *slog.Logger) (cache.Cache, func()) {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		logger.Info("redis not configured, using in-memory cache")
		return cache.NewMemoryCache(), func() {}
	}
	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache", slog.String("error", err.Error()))
		return cache.NewMemoryCache(), func() {}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis not reachable, using in-memory cache", slog.String("error", err.Error()))
		_ = redisCache.Close()
		return cache.NewMemoryCache(), func() {}
	}
	logger.Info("redis connected")
	return redisCache, func() { _ = redisCache.Close() }
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
