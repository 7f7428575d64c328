package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenSet(t *testing.T) {
	s := NewSeenSet(10, time.Minute)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = s.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.Seen(ctx, "msg-2")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 2, s.Len())
}

func TestSeenSetExpires(t *testing.T) {
	s := NewSeenSet(10, 20*time.Millisecond)
	ctx := context.Background()

	_, _ = s.Seen(ctx, "msg-1")
	time.Sleep(50 * time.Millisecond)

	seen, err := s.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSeenSetEvictsOldest(t *testing.T) {
	s := NewSeenSet(2, time.Minute)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, _ = s.Seen(ctx, id)
	}
	seen, _ := s.Seen(ctx, "a")
	assert.False(t, seen)
}
