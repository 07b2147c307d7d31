package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GENERATION_TIMEOUT", "")
	t.Setenv("FREE_DAILY_LIMIT", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("CHARACTER_GENERATION_TEMPERATURE", "")
	t.Setenv("CHARACTER_GENERATION_MAX_TOKENS", "")

	cfg := Load()

	assert.Equal(t, 25*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, 30, cfg.FreeDailyLimit)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "sql", cfg.QuotaBackend)
	assert.InDelta(t, 1.1, cfg.GenerationTemperature, 0.0001)
	assert.InDelta(t, 0.9, cfg.CharacterGenerationTemperature, 0.0001)
	assert.Equal(t, 1200, cfg.CharacterGenerationMaxTokens)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GENERATION_TIMEOUT", "20s")
	t.Setenv("FREE_DAILY_LIMIT", "5")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("GENERATION_TEMPERATURE", "not-a-float")

	cfg := Load()

	assert.Equal(t, 20*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, 5, cfg.FreeDailyLimit)
	assert.True(t, cfg.TracingEnabled)
	assert.InDelta(t, 1.1, cfg.GenerationTemperature, 0.0001)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "chat", DBSSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=chat sslmode=disable TimeZone=UTC", cfg.DSN())
}
