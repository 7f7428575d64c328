package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-apime/fleet/internal/pkg/queue"
)

func TestEnqueueDequeue(t *testing.T) {
	q := NewQueue(2)
	ctx := context.Background()

	ev := queue.Event{ID: "1", InstanceID: "vendas-01", Type: "connection_update", Payload: json.RawMessage(`{"state":"open"}`)}
	require.NoError(t, q.Enqueue(ctx, ev))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "vendas-01", got.InstanceID)
	assert.JSONEq(t, `{"state":"open"}`, string(got.Payload))
}

func TestEnqueueFull(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queue.Event{ID: "1"}))
	assert.ErrorIs(t, q.Enqueue(ctx, queue.Event{ID: "2"}), queue.ErrFull)
}

func TestDequeueTimeout(t *testing.T) {
	q := NewQueue(1)
	got, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestClosed(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(context.Background(), queue.Event{ID: "1"}), queue.ErrClosed)
	_, err := q.Dequeue(context.Background(), time.Second)
	assert.ErrorIs(t, err, queue.ErrClosed)
}
