package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "segredo")

	var cfg Config
	require.NoError(t, env.Parse(&cfg))

	assert.Equal(t, 15*time.Second, cfg.Provider.ListTimeout)
	assert.Equal(t, 20*time.Second, cfg.Provider.CreateTimeout)
	assert.Equal(t, 10*time.Second, cfg.Provider.DeleteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 3, cfg.Batch.CreateGroupSize)
	assert.Equal(t, 2*time.Second, cfg.Batch.CreatePause)
	assert.Equal(t, 60*time.Second, cfg.Pairing.TTL)
	assert.Equal(t, 10*time.Second, cfg.Pairing.RefreshLead)
	assert.Equal(t, 30*time.Second, cfg.Pairing.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.Webhook.PruneAfter)
	assert.Len(t, cfg.Webhook.Events, 4)
}

func TestDurationOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", "segredo")
	t.Setenv("BATCH_CREATE_PAUSE", "250ms")
	t.Setenv("WEBHOOK_EVENTS", "CONNECTION_UPDATE")

	var cfg Config
	require.NoError(t, env.Parse(&cfg))
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.CreatePause)
	assert.Equal(t, []string{"CONNECTION_UPDATE"}, cfg.Webhook.Events)
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "fleet", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=fleet sslmode=disable", cfg.DSN())

	cfg.URL = "postgres://x"
	assert.Equal(t, "postgres://x", cfg.DSN())
}

func TestCallbackOrDefault(t *testing.T) {
	assert.Equal(t, "http://api:8080/webhook", WebhookConfig{}.CallbackOrDefault("http://api:8080"))
	assert.Equal(t, "https://hook", WebhookConfig{CallbackURL: "https://hook"}.CallbackOrDefault("http://api:8080"))
}
