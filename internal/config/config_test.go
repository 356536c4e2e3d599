package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, 10*time.Second, cfg.SendTimeout)
	assert.Equal(t, "* * * * *", cfg.CronSpec)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SCHEDULER_CRON", "*/5 * * * *")
	t.Setenv("LOG_PRETTY", "true")

	cfg := Load()

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.Equal(t, "*/5 * * * *", cfg.CronSpec)
	assert.True(t, cfg.LogPretty)
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("CACHE_TTL", "-1m")
	t.Setenv("LOG_PRETTY", "maybe")

	cfg := Load()

	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.False(t, cfg.LogPretty)
}
