package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/open-apime/fleet/db"
	"github.com/open-apime/fleet/internal/storage/migrate"
	"github.com/open-apime/fleet/internal/storage/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	log := zaptest.NewLogger(t)

	conn, err := New(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	applied, err := migrate.SQLite(context.Background(), conn.Conn, db.Migrations, "migrations/sqlite", log)
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	return conn
}

func TestMigrationsAreIdempotent(t *testing.T) {
	conn := newTestDB(t)
	applied, err := migrate.SQLite(context.Background(), conn.Conn, db.Migrations, "migrations/sqlite", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestInstanceRepository(t *testing.T) {
	repo := NewInstanceRepository(newTestDB(t))
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, model.Instance{
		ID:              "vendas-01",
		ConnectionState: "open",
		PhoneNumber:     "5511999990000",
		MessagesCount:   10,
		HealthScore:     80,
		CreatedAt:       created,
		LastSeen:        created.Add(time.Hour),
	}))
	require.NoError(t, repo.Upsert(ctx, model.Instance{
		ID:              "vendas-01",
		ConnectionState: "closed",
		MessagesCount:   12,
		CreatedAt:       created,
	}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "closed", list[0].ConnectionState)
	assert.Equal(t, int64(12), list[0].MessagesCount)
	assert.Empty(t, list[0].PhoneNumber)
	assert.True(t, list[0].LastSeen.IsZero())
	assert.True(t, created.Equal(list[0].CreatedAt))

	require.NoError(t, repo.Delete(ctx, "vendas-01"))
	assert.ErrorIs(t, repo.Delete(ctx, "vendas-01"), ErrNotFound)
}

func TestInstanceReplaceAll(t *testing.T) {
	repo := NewInstanceRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Upsert(ctx, model.Instance{ID: id, ConnectionState: "open", CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	require.NoError(t, repo.ReplaceAll(ctx, []model.Instance{
		{ID: "b", ConnectionState: "closed", CreatedAt: base.Add(time.Minute)},
		{ID: "d", ConnectionState: "pairing", CreatedAt: base.Add(time.Hour)},
	}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "closed", list[0].ConnectionState)
	assert.Equal(t, "d", list[1].ID)

	require.NoError(t, repo.ReplaceAll(ctx, nil))
	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEventLogRepository(t *testing.T) {
	repo := NewEventLogRepository(newTestDB(t))
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	_, err := repo.Create(ctx, model.EventLog{InstanceID: "vendas-01", Type: "message_upsert", Action: "responded", Payload: `{"a":1}`, CreatedAt: old})
	require.NoError(t, err)
	recent, err := repo.Create(ctx, model.EventLog{InstanceID: "vendas-01", Type: "connection_update", Action: "connection_updated"})
	require.NoError(t, err)
	assert.NotEmpty(t, recent.ID)
	_, err = repo.Create(ctx, model.EventLog{InstanceID: "outra", Type: "unknown", Action: "ignored"})
	require.NoError(t, err)

	logs, err := repo.ListByInstance(ctx, "vendas-01", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "connection_updated", logs[0].Action)
	assert.Equal(t, `{"a":1}`, logs[1].Payload)

	logs, err = repo.ListByInstance(ctx, "vendas-01", 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	removed, err := repo.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
