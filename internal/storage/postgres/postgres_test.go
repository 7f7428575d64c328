package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/open-apime/fleet/db"
	"github.com/open-apime/fleet/internal/config"
	"github.com/open-apime/fleet/internal/storage/migrate"
	"github.com/open-apime/fleet/internal/storage/model"
)

// Requer um PostgreSQL descartável: POSTGRES_TEST_DSN=postgres://... go test ./...
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN não definido")
	}
	log := zaptest.NewLogger(t)

	conn, err := New(config.DatabaseConfig{URL: dsn}, log)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	ctx := context.Background()
	_, err = migrate.Postgres(ctx, conn.Pool, db.Migrations, "migrations/postgres", log)
	require.NoError(t, err)
	_, err = conn.Pool.Exec(ctx, `TRUNCATE instances, event_logs`)
	require.NoError(t, err)
	return conn
}

func TestInstanceRepository(t *testing.T) {
	repo := NewInstanceRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, model.Instance{ID: "a", ConnectionState: "open", CreatedAt: base}))
	require.NoError(t, repo.Upsert(ctx, model.Instance{ID: "b", ConnectionState: "open", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repo.ReplaceAll(ctx, []model.Instance{
		{ID: "b", ConnectionState: "closed", MessagesCount: 3, CreatedAt: base.Add(time.Minute), LastSeen: base.Add(time.Hour)},
	}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "closed", list[0].ConnectionState)
	assert.Equal(t, int64(3), list[0].MessagesCount)
	assert.True(t, base.Add(time.Hour).Equal(list[0].LastSeen))

	require.NoError(t, repo.Delete(ctx, "b"))
	assert.ErrorIs(t, repo.Delete(ctx, "b"), ErrNotFound)
}

func TestEventLogRepository(t *testing.T) {
	repo := NewEventLogRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, model.EventLog{InstanceID: "a", Type: "message_upsert", Action: "ignored", CreatedAt: time.Now().Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = repo.Create(ctx, model.EventLog{InstanceID: "a", Type: "connection_update", Action: "connection_updated"})
	require.NoError(t, err)

	logs, err := repo.ListByInstance(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "connection_updated", logs[0].Action)

	removed, err := repo.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
