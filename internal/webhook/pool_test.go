package webhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/open-apime/fleet/internal/pkg/queue/memory"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []Event
}

func (h *recordingHandler) Handle(ctx context.Context, ev Event) (Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev)
	if ev.InstanceID == "falha" {
		return Result{}, errors.New("boom")
	}
	return Result{Action: ActionIgnored}, nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestPoolDispatchesQueuedEvents(t *testing.T) {
	q := memory.NewQueue(10)
	h := &recordingHandler{}
	p := NewPool(q, h, zaptest.NewLogger(t), 2)
	p.pollTimeout = 10 * time.Millisecond

	ctx := context.Background()
	p.Start(ctx)

	for _, id := range []string{"a", "falha", "b"} {
		ev, err := ParseEvent([]byte(`{"event":"messages.upsert","instance":"`+id+`","data":{}}`), time.Now())
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(ctx, ev.Queued()))
	}

	require.Eventually(t, func() bool { return h.count() == 3 }, time.Second, 5*time.Millisecond)
	p.Stop()

	for _, ev := range h.seen {
		assert.Equal(t, TypeMessageUpsert, ev.Type)
	}
	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestPoolStopsWhenQueueCloses(t *testing.T) {
	q := memory.NewQueue(1)
	p := NewPool(q, &recordingHandler{}, zaptest.NewLogger(t), 1)
	p.pollTimeout = 10 * time.Millisecond
	p.Start(context.Background())

	require.NoError(t, q.Close())

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool não encerrou")
	}
}

func TestPoolStopWithoutStart(t *testing.T) {
	p := NewPool(memory.NewQueue(1), &recordingHandler{}, zaptest.NewLogger(t), 1)
	p.Stop()
}
