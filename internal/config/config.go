// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Public identity
	Number string // Display number shown on the operator page
	AppURL string // Public base URL, used to build event/stream callback URLs

	// Number insight (risk scoring)
	InsightURL     string
	InsightTimeout time.Duration

	// Platform credentials (JWT minting for insight + recording fetch)
	ApplicationID string
	PrivateKey    string // PEM-encoded RSA key, or a path to a PEM file

	// Speech prompts
	SpeechFile string

	// Recordings
	RecordingDir string

	// Session lifetime
	SessionTTL time.Duration

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultInsightURL     = "https://api.nexmo.com/v2/ni"
	DefaultInsightTimeout = 5 * time.Second
	DefaultSpeechFile     = "speech.json"
	DefaultRecordingDir   = "recordings"
	DefaultSessionTTL     = 60 * time.Minute
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		Number:         os.Getenv("VONAGE_NUMBER"),
		AppURL:         os.Getenv("APP_URL"),
		InsightURL:     getEnv("INSIGHT_URL", DefaultInsightURL),
		InsightTimeout: getEnvSeconds("INSIGHT_TIMEOUT", DefaultInsightTimeout),
		ApplicationID:  os.Getenv("VONAGE_APPLICATION_ID"),
		PrivateKey:     os.Getenv("VONAGE_PRIVATE_KEY"),
		SpeechFile:     getEnv("SPEECH_FILE", DefaultSpeechFile),
		RecordingDir:   getEnv("RECORDING_DIR", DefaultRecordingDir),
		SessionTTL:     getEnvMinutes("SESSION_TTL_MINUTES", DefaultSessionTTL),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.Number == "" {
		return fmt.Errorf("VONAGE_NUMBER is required")
	}
	if c.AppURL == "" {
		return fmt.Errorf("APP_URL is required")
	}
	if c.ApplicationID == "" {
		return fmt.Errorf("VONAGE_APPLICATION_ID is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("VONAGE_PRIVATE_KEY is required")
	}
	if c.InsightTimeout <= 0 {
		return fmt.Errorf("INSIGHT_TIMEOUT must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
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

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultValue
}

func getEnvMinutes(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return defaultValue
}
