package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Locker coordena a persistência do snapshot entre réplicas.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type MonitorOptions struct {
	Interval time.Duration
	Clock    clock.WithTicker
	Logger   *zap.Logger
	// Lock é opcional; sem ele toda réplica grava o snapshot.
	Lock Locker
}

// Monitor sincroniza o registry periodicamente. Falhas são logadas e o loop
// segue; o próximo tick tenta de novo.
type Monitor struct {
	registry *Registry
	interval time.Duration
	clock    clock.WithTicker
	log      *zap.Logger
	lock     Locker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(r *Registry, opts MonitorOptions) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = r.clock
	}
	if opts.Logger == nil {
		opts.Logger = r.log
	}
	return &Monitor{
		registry: r,
		interval: opts.Interval,
		clock:    opts.Clock,
		log:      opts.Logger,
		lock:     opts.Lock,
	}
}

// Start dispara um tick imediato e depois um a cada intervalo. Chamadas
// repetidas são ignoradas enquanto o monitor estiver rodando.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.registry.setMonitoring(true)

	m.log.Info("monitor: iniciado", zap.Duration("interval", m.interval))
	go m.run(ctx, m.done)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.registry.setMonitoring(false)
	m.log.Info("monitor: encerrado")
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	_ = m.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			_ = m.Tick(ctx)
		}
	}
}

// Tick executa uma iteração: sync e, se ele der certo, persistência do snapshot.
func (m *Monitor) Tick(ctx context.Context) error {
	res, err := m.registry.Sync(ctx)
	if err != nil {
		m.log.Error("monitor: sync falhou", zap.Error(err))
		return err
	}
	m.log.Debug("monitor: sync ok", zap.Int("instances", res.Count))

	if err := m.persist(ctx); err != nil {
		m.log.Error("monitor: falha ao persistir snapshot", zap.Error(err))
		return err
	}
	return nil
}

func (m *Monitor) persist(ctx context.Context) error {
	if m.lock == nil {
		return m.registry.SaveSnapshot(ctx)
	}

	acquired, err := m.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		m.log.Debug("monitor: outra réplica está persistindo, pulando")
		return nil
	}
	defer func() {
		if err := m.lock.Release(context.WithoutCancel(ctx)); err != nil {
			m.log.Warn("monitor: falha ao liberar lock", zap.Error(err))
		}
	}()
	return m.registry.SaveSnapshot(ctx)
}
