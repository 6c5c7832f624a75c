package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/search"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	TourvisorBaseURL string
	TourvisorLogin   string
	TourvisorPass    string
	RemoteTimeout    time.Duration
	RemoteRPS        int

	RetryAttempts int
	RetryBase     time.Duration
	RetryMax      time.Duration

	PollInterval       time.Duration
	MaxMonitorLifetime time.Duration
	CloseOnError       bool

	PublishFirstThreshold int
	PublishIncrement      int
	PublishSmallIncrement int
	DefaultPageSize       int

	RedisURL        string
	CacheTTL        time.Duration
	SearchParamsTTL time.Duration

	AllowedOrigins []string
	APIRateLimit   int
	APIRateBurst   int

	OTLPEndpoint     string
	TraceSampleRatio float64
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		TourvisorBaseURL: getEnv("TOURVISOR_BASE_URL", "http://tourvisor.ru/xml"),
		TourvisorLogin:   getEnv("TOURVISOR_AUTH_LOGIN", ""),
		TourvisorPass:    strings.TrimSpace(os.Getenv("TOURVISOR_AUTH_PASS")),
		RemoteTimeout:    time.Duration(getEnvInt("TOURVISOR_TIMEOUT_SECONDS", 15)) * time.Second,
		RemoteRPS:        getEnvInt("TOURVISOR_RPS", 5),

		RetryAttempts: getEnvInt("REMOTE_RETRY_ATTEMPTS", 3),
		RetryBase:     time.Duration(getEnvInt("REMOTE_RETRY_BASE_MS", 1000)) * time.Millisecond,
		RetryMax:      time.Duration(getEnvInt("REMOTE_RETRY_MAX_MS", 8000)) * time.Millisecond,

		PollInterval:       time.Duration(getEnvInt("MONITOR_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		MaxMonitorLifetime: time.Duration(getEnvInt("MONITOR_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
		CloseOnError:       getEnvBool("MONITOR_CLOSE_ON_ERROR", false),

		PublishFirstThreshold: getEnvInt("PUBLISH_FIRST_THRESHOLD", 5),
		PublishIncrement:      getEnvInt("PUBLISH_INCREMENT", 10),
		PublishSmallIncrement: getEnvInt("PUBLISH_SMALL_INCREMENT", 5),
		DefaultPageSize:       domain.ClampPageSize(getEnvInt("DEFAULT_PAGE_SIZE", domain.DefaultPageSize)),

		RedisURL:        getEnv("REDIS_URL", ""),
		CacheTTL:        time.Duration(getEnvInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
		SearchParamsTTL: time.Duration(getEnvInt("SEARCH_PARAMS_TTL_SECONDS", 7200)) * time.Second,

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		APIRateLimit:   getEnvInt("API_RATE_LIMIT_RPS", 50),
		APIRateBurst:   getEnvInt("API_RATE_LIMIT_BURST", 100),

		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
	}
}

func (c Config) RetryConfig() search.RetryConfig {
	return search.RetryConfig{
		MaxAttempts:  c.RetryAttempts,
		InitialDelay: c.RetryBase,
		MaxDelay:     c.RetryMax,
		Multiplier:   2.0,
	}
}

func (c Config) MonitorConfig() search.MonitorConfig {
	return search.MonitorConfig{
		PollInterval: c.PollInterval,
		MaxLifetime:  c.MaxMonitorLifetime,
		Policy: search.PublishPolicy{
			FirstThreshold:  c.PublishFirstThreshold,
			Increment:       c.PublishIncrement,
			SmallIncrement:  c.PublishSmallIncrement,
			SmallCountLimit: c.DefaultPageSize,
		},
		FetchChunk:   domain.MaxPageSize,
		CloseOnError: c.CloseOnError,
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			items = append(items, value)
		}
	}
	return items
}
