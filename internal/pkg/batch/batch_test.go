package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestGroups(t *testing.T) {
	assert.Equal(t, []int{3, 3, 1}, Groups(7, 3))
	assert.Equal(t, []int{3}, Groups(3, 3))
	assert.Equal(t, []int{2}, Groups(2, 0))
	assert.Nil(t, Groups(0, 3))
}

func TestRunPartialFailure(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	res := Run(context.Background(), ids, ID, func(ctx context.Context, id string) (any, error) {
		if id == "b" {
			return nil, errors.New("falhou")
		}
		return id + "!", nil
	})

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 3, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, res.Total, res.Successful+res.Failed)
	assert.InDelta(t, 0.75, res.SuccessRate, 0.0001)

	require.Len(t, res.Items, 4)
	assert.Equal(t, "b", res.Items[1].ID)
	assert.Equal(t, "falhou", res.Items[1].Error)
	assert.Equal(t, "c!", res.Items[2].Data)
	assert.Equal(t, []string{"a", "c", "d"}, res.Succeeded())
}

func TestRunGroupedSequencing(t *testing.T) {
	ids := []string{"1", "2", "3", "4", "5", "6", "7"}

	var (
		mu       sync.Mutex
		inFlight int32
		peak     int32
		order    []string
	)
	res := RunGrouped(context.Background(), nil, ids, ID, 3, time.Millisecond, func(ctx context.Context, id string) (any, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	})

	assert.Equal(t, 7, res.Successful)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	require.Len(t, order, 7)
	// o último grupo só começa depois dos dois primeiros
	assert.Equal(t, "7", order[6])
}

func TestRunGroupedCancelledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ids := []string{"1", "2", "3", "4"}

	res := RunGrouped(ctx, clocktesting.NewFakeClock(time.Now()), ids, ID, 2, time.Hour, func(ctx context.Context, id string) (any, error) {
		cancel()
		return nil, nil
	})

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, context.Canceled.Error(), res.Items[3].Error)
}

func TestRunEmpty(t *testing.T) {
	res := Run(context.Background(), []string(nil), ID, func(ctx context.Context, id string) (any, error) {
		return nil, nil
	})
	assert.Zero(t, res.Total)
	assert.Zero(t, res.SuccessRate)
}

func TestRunGroupedPauseFollowsClock(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ids := []string{"1", "2", "3", "4", "5"}

	var calls atomic.Int32
	done := make(chan Result, 1)
	go func() {
		done <- RunGrouped(context.Background(), clk, ids, ID, 2, 2*time.Second, func(ctx context.Context, id string) (any, error) {
			calls.Add(1)
			return nil, nil
		})
	}()

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())

	clk.Step(2 * time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 4 && clk.HasWaiters() }, time.Second, time.Millisecond)

	clk.Step(2 * time.Second)
	select {
	case res := <-done:
		assert.Equal(t, 5, res.Successful)
	case <-time.After(time.Second):
		t.Fatal("RunGrouped não terminou após as pausas")
	}
}
