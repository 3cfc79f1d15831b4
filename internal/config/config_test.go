package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/zidallie")
	t.Setenv("MPESA_BASE_URL", "https://api.example.com/")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://api.example.com", cfg.Gateway.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.DirectoryCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "FREQ=MINUTELY;INTERVAL=30", cfg.SweepRecurrence)
}

func TestFromEnvDurations(t *testing.T) {
	t.Setenv("WORKER_INTERVAL", "90")
	t.Setenv("SWEEP_GRACE_PERIOD", "1h")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.WorkerInterval)
	assert.Equal(t, time.Hour, cfg.SweepGracePeriod)

	t.Setenv("MPESA_TIMEOUT", "soon")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "MPESA_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "MPESA_PASSKEY")

	cfg = &Config{
		DatabaseURL: "postgres://localhost/zidallie",
		Gateway: GatewayConfig{
			ConsumerKey:    "key",
			ConsumerSecret: "secret",
			ShortCode:      "174379",
			PassKey:        "pass",
			CallbackURL:    "https://example.com/api/v1/mpesa/stk/callback",
		},
	}
	assert.NoError(t, cfg.Validate())
}
