package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Upstream feed endpoints
	FeedBaseURL   string // REST base for OHLC polling
	StreamBaseURL string // Websocket base for tick streaming

	// Polling client
	RequestTimeout   time.Duration // Per-attempt HTTP timeout
	MaxFetchAttempts int           // Attempts per OHLC fetch, including the first
	RetryDelay       time.Duration // Fixed delay between fetch attempts

	// Poll cache
	CacheTTL        time.Duration // How long a cached OHLC window stays fresh
	JanitorInterval time.Duration // Sweep interval for expired entries

	// Stream reconnection
	ReconnectMinDelay    time.Duration // First backoff step after a lost stream
	ReconnectMaxDelay    time.Duration // Backoff ceiling
	MaxReconnectAttempts int           // Reconnect budget per outage

	// Gateway
	ListenAddr            string
	GatewayRequestTimeout time.Duration

	// Logging
	LogLevel string // zerolog level name; unknown values fall back to info

	// Tracing
	TraceEnabled   bool
	ServiceVersion string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Upstream feed endpoints
	cfg.FeedBaseURL = getEnv("FEED_BASE_URL", "https://gpcintegral.southeastasia.cloudapp.azure.com")
	if cfg.FeedBaseURL == "" {
		errs = append(errs, "FEED_BASE_URL must be set")
	}
	cfg.StreamBaseURL = getEnv("FEED_STREAM_URL", "wss://gpcintegral.southeastasia.cloudapp.azure.com")
	if cfg.StreamBaseURL == "" {
		errs = append(errs, "FEED_STREAM_URL must be set")
	}

	// Polling client
	requestTimeoutSeconds := getEnvAsInt("FEED_REQUEST_TIMEOUT_SECONDS", 10)
	if requestTimeoutSeconds <= 0 {
		errs = append(errs, "FEED_REQUEST_TIMEOUT_SECONDS must be positive")
	}
	cfg.RequestTimeout = time.Duration(requestTimeoutSeconds) * time.Second

	cfg.MaxFetchAttempts = getEnvAsInt("FEED_MAX_ATTEMPTS", 3)
	if cfg.MaxFetchAttempts < 1 {
		errs = append(errs, "FEED_MAX_ATTEMPTS must be at least 1")
	}

	retryDelaySeconds := getEnvAsInt("FEED_RETRY_DELAY_SECONDS", 2)
	if retryDelaySeconds <= 0 {
		errs = append(errs, "FEED_RETRY_DELAY_SECONDS must be positive")
	}
	cfg.RetryDelay = time.Duration(retryDelaySeconds) * time.Second

	// Poll cache
	cacheTTLSeconds := getEnvAsInt("CACHE_TTL_SECONDS", 60)
	if cacheTTLSeconds <= 0 {
		errs = append(errs, "CACHE_TTL_SECONDS must be positive")
	}
	cfg.CacheTTL = time.Duration(cacheTTLSeconds) * time.Second

	janitorSeconds := getEnvAsInt("CACHE_JANITOR_INTERVAL_SECONDS", cacheTTLSeconds)
	if janitorSeconds <= 0 {
		errs = append(errs, "CACHE_JANITOR_INTERVAL_SECONDS must be positive")
	}
	cfg.JanitorInterval = time.Duration(janitorSeconds) * time.Second

	// Stream reconnection
	reconnectMinSeconds := getEnvAsInt("RECONNECT_MIN_DELAY_SECONDS", 1)
	reconnectMaxSeconds := getEnvAsInt("RECONNECT_MAX_DELAY_SECONDS", 30)
	if reconnectMinSeconds <= 0 {
		errs = append(errs, "RECONNECT_MIN_DELAY_SECONDS must be positive")
	}
	if reconnectMaxSeconds < reconnectMinSeconds {
		errs = append(errs, "RECONNECT_MAX_DELAY_SECONDS must not be less than RECONNECT_MIN_DELAY_SECONDS")
	}
	cfg.ReconnectMinDelay = time.Duration(reconnectMinSeconds) * time.Second
	cfg.ReconnectMaxDelay = time.Duration(reconnectMaxSeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 5)
	if cfg.MaxReconnectAttempts < 1 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS must be at least 1")
	}

	// Gateway
	cfg.ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	gatewayTimeoutSeconds := getEnvAsInt("GATEWAY_TIMEOUT_SECONDS", 30)
	if gatewayTimeoutSeconds <= 0 {
		errs = append(errs, "GATEWAY_TIMEOUT_SECONDS must be positive")
	}
	cfg.GatewayRequestTimeout = time.Duration(gatewayTimeoutSeconds) * time.Second

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// Tracing
	cfg.TraceEnabled = getEnvAsBool("TRACE_ENABLED", false)
	cfg.ServiceVersion = getEnv("SERVICE_VERSION", "0.1.0")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
