package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "kairos", cfg.Auth.JWTIssuer)
	assert.Empty(t, cfg.Postgres.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 100000, cfg.Vault.KDFIterations)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.ClaimLimit)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.ClaimWindow)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("KAIROS_HTTP_ADDR", ":9090")
	t.Setenv("KAIROS_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("KAIROS_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("KAIROS_TX_TIMEOUT", "2s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 2*time.Second, cfg.Vault.TxTimeout)
}

func TestFromEnvRejectsDevKeyInProduction(t *testing.T) {
	t.Setenv("KAIROS_ENV", "production")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAIROS_JWT_SIGNING_KEY")
}

func TestFromEnvRejectsMalformedDuration(t *testing.T) {
	t.Setenv("KAIROS_HTTP_REQUEST_TIMEOUT", "soon")

	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvRejectsZeroRateLimit(t *testing.T) {
	t.Setenv("KAIROS_RATELIMIT_CLAIM_LIMIT", "0")

	_, err := FromEnv()
	require.Error(t, err)

	t.Setenv("KAIROS_RATELIMIT_ENABLED", "false")
	_, err = FromEnv()
	require.NoError(t, err)
}
