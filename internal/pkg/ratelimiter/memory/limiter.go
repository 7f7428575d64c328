package memory

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/open-apime/fleet/internal/pkg/ratelimiter"
)

type item struct {
	count     int
	expiresAt time.Time
}

type MemoryLimiter struct {
	mu    sync.Mutex
	items map[string]*item
	clock clock.WithTicker
	stop  chan struct{}
	once  sync.Once
}

func NewLimiter() *MemoryLimiter {
	return NewLimiterWithClock(clock.RealClock{})
}

// NewLimiterWithClock inicia também a rotina de limpeza de janelas expiradas.
func NewLimiterWithClock(clk clock.WithTicker) *MemoryLimiter {
	l := &MemoryLimiter{
		items: make(map[string]*item),
		clock: clk,
		stop:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimiter.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	val, exists := l.items[key]

	if !exists || !now.Before(val.expiresAt) {
		l.items[key] = &item{
			count:     1,
			expiresAt: now.Add(window),
		}
		return &ratelimiter.Result{
			Allowed:   limit > 0,
			Remaining: max(limit-1, 0),
			Reset:     now.Add(window),
		}, nil
	}

	val.count++
	return &ratelimiter.Result{
		Allowed:    val.count <= limit,
		Remaining:  max(limit-val.count, 0),
		Reset:      val.expiresAt,
		RetryAfter: val.expiresAt.Sub(now),
	}, nil
}

func (l *MemoryLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := l.clock.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C():
			l.mu.Lock()
			now := l.clock.Now()
			for k, v := range l.items {
				if !now.Before(v.expiresAt) {
					delete(l.items, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
