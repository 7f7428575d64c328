package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/open-apime/fleet/internal/config"
)

// Requer um Redis real: REDIS_TEST_ADDR=localhost:6379 go test ./...
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR não definido")
	}
	c, err := New(config.RedisConfig{Addr: addr}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLock(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "test:lock:" + uuid.NewString()

	a := NewLock(c, key, time.Minute)
	b := NewLock(c, key, time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b não é dono, Release não pode apagar a chave de a
	require.NoError(t, b.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx))
}

func TestSeenSet(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	s := NewSeenSet(c, "test:seen:"+uuid.NewString()+":", time.Minute)

	seen, err := s.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = s.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)
}
