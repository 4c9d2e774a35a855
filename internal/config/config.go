// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/safewalk/guardian/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port       string
	Env        string // "development", "staging", "production"
	LogLevel   string
	LogFormat  string // "json" or "text"
	CORSOrigin string // single allowed origin, "*" for any

	// Risk provider (OpenAI-compatible chat completions)
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	ProviderTimeout time.Duration

	// Speech provider
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsBaseURL string

	// Persistence
	MemoryFile string

	// Rate governor
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort              = "8787"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultCORSOrigin        = "*"
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultProviderTimeout   = 12 * time.Second
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	DefaultMemoryFile        = "data/memory.json"
	DefaultRateLimitMax      = 30
	DefaultRateLimitWindow   = time.Minute
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:         getEnv("LOG_FORMAT", DefaultLogFormat),
		CORSOrigin:        getEnv("CORS_ORIGIN", DefaultCORSOrigin),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"), // Optional, fallback scoring if unset
		OpenAIModel:       getEnv("OPENAI_MODEL", DefaultOpenAIModel),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		ProviderTimeout:   getEnvDuration("PROVIDER_TIMEOUT", DefaultProviderTimeout),
		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		ElevenLabsBaseURL: getEnv("ELEVENLABS_BASE_URL", DefaultElevenLabsBaseURL),
		MemoryFile:        getEnv("MEMORY_FILE", DefaultMemoryFile),
		RateLimitMax:      int(getEnvInt64("RATE_LIMIT_MAX", DefaultRateLimitMax)),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. Provider keys are
// optional: without them the service runs on local fallbacks.
func (c *Config) Validate() error {
	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		return fmt.Errorf("PORT must be a number between 0 and 65535, got %q", c.Port)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}

	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}

	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}

	if c.MemoryFile == "" {
		return fmt.Errorf("MEMORY_FILE must not be empty")
	}

	// Outside production, provider base URLs may point at local servers.
	allowPrivate := !c.IsProduction()
	if c.OpenAIBaseURL != "" {
		if err := security.ValidateUpstreamURL(c.OpenAIBaseURL, allowPrivate); err != nil {
			return fmt.Errorf("OPENAI_BASE_URL: %w", err)
		}
	}
	if c.ElevenLabsBaseURL != "" {
		if err := security.ValidateUpstreamURL(c.ElevenLabsBaseURL, allowPrivate); err != nil {
			return fmt.Errorf("ELEVENLABS_BASE_URL: %w", err)
		}
	}

	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
