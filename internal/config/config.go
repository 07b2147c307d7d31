// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Env                string
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// Database settings
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// NATS settings
	NATSURL       string
	NATSCAFile    string
	NATSCertFile  string
	NATSKeyFile   string
	NATSToken     string
	EventsEnabled bool

	// JWT settings
	JWTSecret string

	// LLM settings
	LLMProvider           string
	OpenAIAPIKey          string
	AnthropicAPIKey       string
	GeminiAPIKey          string
	GenerationModel       string
	GenerationTimeout     time.Duration
	GenerationMaxTokens   int
	GenerationMaxChars    int
	GenerationTemperature float64

	// Character drafting
	CharacterGenerationMaxTokens   int
	CharacterGenerationTemperature float64

	// Quota
	QuotaBackend       string
	FreeDailyLimit     int
	UsagePruneInterval time.Duration

	// Billing
	StripeWebhookSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool

	// Error reporting
	SentryDSN string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		Env:                getEnv("ENV", "production"),
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		CORSOrigins:        []string{getEnv("CORS_ORIGIN", "https://*")},

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "character_chat"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// NATS
		NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:    getEnv("NATS_CA_FILE", ""),
		NATSCertFile:  getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:   getEnv("NATS_KEY_FILE", ""),
		NATSToken:     getEnv("NATS_TOKEN", ""),
		EventsEnabled: getBoolEnv("EVENTS_ENABLED", true),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		LLMProvider:           getEnv("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:       getEnv("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GenerationModel:       getEnv("GENERATION_MODEL", ""),
		GenerationTimeout:     getDurationEnv("GENERATION_TIMEOUT", 25*time.Second),
		GenerationMaxTokens:   getIntEnv("GENERATION_MAX_TOKENS", 600),
		GenerationMaxChars:    getIntEnv("GENERATION_MAX_CHARS", 4000),
		GenerationTemperature: getFloatEnv("GENERATION_TEMPERATURE", 1.1),

		// Character drafting
		CharacterGenerationMaxTokens:   getIntEnv("CHARACTER_GENERATION_MAX_TOKENS", 1200),
		CharacterGenerationTemperature: getFloatEnv("CHARACTER_GENERATION_TEMPERATURE", 0.9),

		// Quota
		QuotaBackend:       getEnv("QUOTA_BACKEND", "sql"),
		FreeDailyLimit:     getIntEnv("FREE_DAILY_LIMIT", 30),
		UsagePruneInterval: getDurationEnv("USAGE_PRUNE_INTERVAL", 6*time.Hour),

		// Billing
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),

		// Error reporting
		SentryDSN: getEnv("SENTRY_DSN", ""),
	}
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
