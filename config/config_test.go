package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Server.IsProduction())
	assert.Equal(t, "0.1", cfg.Business.TaxRate.String())
	assert.Equal(t, "5", cfg.Business.ShippingCost.String())
	assert.True(t, cfg.Business.FreeShippingThreshold.IsZero())
	assert.Equal(t, "USD", cfg.Business.Currency)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("TAX_RATE", "0.0825")
	t.Setenv("SHIPPING_COST", "-3")
	t.Setenv("CURRENCY", "eur")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "10")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("TRACE_SAMPLE_RATIO", "not-a-number")

	cfg := Load()

	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, "0.0825", cfg.Business.TaxRate.String())
	assert.Equal(t, "5", cfg.Business.ShippingCost.String(), "negative shipping falls back to default")
	assert.Equal(t, "EUR", cfg.Business.Currency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 1.0, cfg.Observ.TraceSampleRatio)
}
