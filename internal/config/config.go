package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the assistant backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	FrontendDir      string

	AllowAnyOrigin   bool
	WSReadLimitBytes int

	GatewayMode       string
	OllamaURL         string
	OllamaModel       string
	OllamaTimeout     time.Duration
	StreamIdleTimeout time.Duration

	KnowledgeStorePath   string
	KnowledgeDatabaseURL string

	HighRiskKeywords  []string
	SensitiveKeywords []string

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file, then environment variables, and applies safe
// defaults. Variables already present in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "robotbuddy"),
		FrontendDir:      envOrDefault("APP_FRONTEND_DIR", "frontend"),

		GatewayMode: strings.ToLower(envOrDefault("GATEWAY_MODE", "ollama")),
		OllamaURL:   envOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel: envOrDefault("OLLAMA_MODEL", "llama3.2:1b"),

		KnowledgeStorePath:   envOrDefault("KNOWLEDGE_STORE_PATH", "memory_store.json"),
		KnowledgeDatabaseURL: stringsTrimSpace("KNOWLEDGE_DATABASE_URL"),

		HighRiskKeywords:  listFromEnv("MODE_HIGH_RISK_KEYWORDS"),
		SensitiveKeywords: listFromEnv("MODE_SENSITIVE_KEYWORDS"),

		LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envOrDefault("LOG_FORMAT", "json")),

		ShutdownTimeout:   15 * time.Second,
		OllamaTimeout:     120 * time.Second,
		StreamIdleTimeout: 120 * time.Second,
		WSReadLimitBytes:  64 * 1024,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OllamaTimeout, err = durationFromEnv("OLLAMA_TIMEOUT", cfg.OllamaTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamIdleTimeout, err = durationFromEnv("OLLAMA_STREAM_IDLE_TIMEOUT", cfg.StreamIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.WSReadLimitBytes, err = intFromEnv("APP_WS_READ_LIMIT_BYTES", cfg.WSReadLimitBytes)
	if err != nil {
		return Config{}, err
	}

	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.OllamaTimeout <= 0 {
		return Config{}, fmt.Errorf("OLLAMA_TIMEOUT must be positive")
	}
	if cfg.StreamIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("OLLAMA_STREAM_IDLE_TIMEOUT must be positive")
	}
	if cfg.WSReadLimitBytes <= 0 {
		return Config{}, fmt.Errorf("APP_WS_READ_LIMIT_BYTES must be positive")
	}
	switch cfg.GatewayMode {
	case "ollama", "mock":
	default:
		return Config{}, fmt.Errorf("GATEWAY_MODE must be ollama or mock, got %q", cfg.GatewayMode)
	}
	if cfg.OllamaModel == "" {
		return Config{}, fmt.Errorf("OLLAMA_MODEL must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// listFromEnv splits a comma separated value, dropping blank entries. Unset or
// blank yields nil so callers can fall back to built-in lists.
func listFromEnv(key string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
