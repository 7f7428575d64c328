package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/open-apime/fleet/internal/config"
	"github.com/open-apime/fleet/internal/storage/memory"
)

func TestNewRepositoriesSQLiteInMemoryDeps(t *testing.T) {
	cfg := config.Config{
		Storage: config.StorageConfig{Driver: "sqlite", DataDir: t.TempDir(), AutoMigrate: true},
		Webhook: config.WebhookConfig{QueueBuffer: 10},
	}

	repos, err := NewRepositories(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(repos.Close)

	assert.Nil(t, repos.RedisClient)
	assert.NotNil(t, repos.Instance)
	assert.NotNil(t, repos.EventLog)
	assert.IsType(t, &memory.SeenSet{}, repos.SeenMessages)

	size, err := repos.WebhookQueue.Size(context.Background())
	require.NoError(t, err)
	assert.Zero(t, size)

	// tabelas criadas pelo auto-migrate
	list, err := repos.Instance.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNewRepositoriesUnknownDriver(t *testing.T) {
	cfg := config.Config{Storage: config.StorageConfig{Driver: "mongo"}}

	_, err := NewRepositories(cfg, zaptest.NewLogger(t))
	var unknown *ErrUnknownDriver
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "mongo", unknown.Driver)
}
