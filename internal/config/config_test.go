package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, StoreMongo, cfg.CartStore)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5432, cfg.PostgresPort)
	assert.Equal(t, uint32(5), cfg.BreakerFailures)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "orders-placed", cfg.KafkaTopic)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CART_STORE", "Memory")
	t.Setenv("ORDER_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, StoreMemory, cfg.CartStore)
	assert.Equal(t, 2*time.Second, cfg.OrderTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ORDER_TIMEOUT", "soon")
	t.Setenv("POSTGRES_PORT", "-1")
	t.Setenv("CART_STORE", "files")

	_, err := Load()

	require.Error(t, err)
	assert.ErrorContains(t, err, "ORDER_TIMEOUT")
	assert.ErrorContains(t, err, "POSTGRES_PORT")
	// validation runs only once every variable parses
	assert.NotContains(t, err.Error(), "JWT_SECRET")

	t.Setenv("ORDER_TIMEOUT", "")
	t.Setenv("POSTGRES_PORT", "")
	_, err = Load()
	assert.ErrorContains(t, err, "JWT_SECRET is required")
	assert.ErrorContains(t, err, "CART_STORE")
}
