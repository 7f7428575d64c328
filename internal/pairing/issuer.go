// Package pairing emite e mantém em cache os códigos de pareamento (QR) das
// instâncias. Cada instância tem no máximo uma entrada válida; emitir um código
// novo descarta a anterior e cancela o refresh agendado para ela.
package pairing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/open-apime/fleet/internal/metrics"
	"github.com/open-apime/fleet/internal/pkg/batch"
	"github.com/open-apime/fleet/internal/provider"
	"github.com/open-apime/fleet/internal/registry"
)

// Instances é a parte do registry que o issuer consome.
type Instances interface {
	Create(ctx context.Context, cfg registry.InstanceConfig) (registry.Instance, error)
	MarkPairing(ctx context.Context, id string) error
}

type Options struct {
	TTL           time.Duration
	RefreshLead   time.Duration
	SweepInterval time.Duration
	CreateDelay   time.Duration
	QRSize        int
	Clock         clock.WithTickerAndDelayedExecution
	Logger        *zap.Logger
}

func (o *Options) defaults() {
	if o.TTL <= 0 {
		o.TTL = 60 * time.Second
	}
	if o.RefreshLead <= 0 || o.RefreshLead >= o.TTL {
		o.RefreshLead = min(10*time.Second, o.TTL/2)
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	if o.CreateDelay < 0 {
		o.CreateDelay = 0
	}
	if o.QRSize <= 0 {
		o.QRSize = 256
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type PairingCode struct {
	InstanceID  string    `json:"instanceId"`
	Code        string    `json:"code"`
	Image       string    `json:"image"`
	PairingCode string    `json:"pairingCode,omitempty"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CacheHit    bool      `json:"cacheHit"`
}

type CreateResult struct {
	InstanceCreated bool              `json:"instanceCreated"`
	Instance        registry.Instance `json:"instance"`
	Code            *PairingCode      `json:"pairingCode,omitempty"`
	CodeError       string            `json:"codeError,omitempty"`
}

type Stats struct {
	CacheSize         int      `json:"cacheSize"`
	CachedInstanceIDs []string `json:"cachedInstanceIds"`
	TTLMs             int64    `json:"ttlMs"`
}

type entry struct {
	code  PairingCode
	gen   uint64
	timer clock.Timer
}

type Issuer struct {
	provider  provider.Client
	instances Instances
	opts      Options
	clock     clock.WithTickerAndDelayedExecution
	log       *zap.Logger

	flight singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(p provider.Client, instances Instances, opts Options) *Issuer {
	opts.defaults()
	return &Issuer{
		provider:  p,
		instances: instances,
		opts:      opts,
		clock:     opts.Clock,
		log:       opts.Logger,
		entries:   make(map[string]*entry),
	}
}

// Generate devolve o código em cache ou pede um novo ao provider. Misses
// concorrentes para a mesma instância resultam em uma única chamada.
func (i *Issuer) Generate(ctx context.Context, id string) (PairingCode, error) {
	if pc, ok := i.lookup(id); ok {
		metrics.RecordPairing(true)
		pc.CacheHit = true
		return pc, nil
	}

	// a chamada compartilhada não herda o cancelamento de quem a iniciou;
	// o timeout por operação do provider continua valendo
	shared := context.WithoutCancel(ctx)
	ch := i.flight.DoChan(id, func() (any, error) {
		// outro miss pode ter acabado de preencher o cache
		if pc, ok := i.lookup(id); ok {
			pc.CacheHit = true
			return pc, nil
		}
		return i.issue(shared, id)
	})

	select {
	case <-ctx.Done():
		return PairingCode{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return PairingCode{}, res.Err
		}
		pc := res.Val.(PairingCode)
		metrics.RecordPairing(pc.CacheHit)
		return pc, nil
	}
}

// GenerateWithAutoRefresh agenda uma reemissão RefreshLead antes de expirar.
// Falhas do refresh são apenas logadas.
func (i *Issuer) GenerateWithAutoRefresh(ctx context.Context, id string) (PairingCode, error) {
	pc, err := i.Generate(ctx, id)
	if err != nil {
		return PairingCode{}, err
	}
	i.schedule(id)
	return pc, nil
}

func (i *Issuer) Refresh(ctx context.Context, id string) (PairingCode, error) {
	i.Invalidate(id)
	return i.Generate(ctx, id)
}

func (i *Issuer) IsValid(id string) bool {
	_, ok := i.lookup(id)
	return ok
}

// Invalidate descarta a entrada e o refresh pendente, se houver.
func (i *Issuer) Invalidate(id string) {
	i.mu.Lock()
	removed := i.evictLocked(id)
	size := len(i.entries)
	i.mu.Unlock()

	if removed {
		metrics.SetPairingCacheSize(size)
		i.log.Debug("pairing: código invalidado", zap.String("instance_id", id))
	}
}

func (i *Issuer) GenerateMany(ctx context.Context, ids []string) batch.Result {
	return batch.Run(ctx, ids, batch.ID, func(ctx context.Context, id string) (any, error) {
		return i.Generate(ctx, id)
	})
}

// CreateInstanceWithCode cria a instância, espera o provider inicializá-la e
// emite o primeiro código. A falha do código não desfaz a criação.
func (i *Issuer) CreateInstanceWithCode(ctx context.Context, cfg registry.InstanceConfig) (CreateResult, error) {
	inst, err := i.instances.Create(ctx, cfg)
	if err != nil {
		return CreateResult{}, err
	}
	res := CreateResult{InstanceCreated: true, Instance: inst}

	if err := i.sleep(ctx, i.opts.CreateDelay); err != nil {
		res.CodeError = err.Error()
		return res, nil
	}

	pc, err := i.Generate(ctx, inst.ID)
	if err != nil {
		i.log.Warn("pairing: instância criada sem código",
			zap.String("instance_id", inst.ID),
			zap.Error(err),
		)
		res.CodeError = err.Error()
		return res, nil
	}
	res.Code = &pc
	return res, nil
}

// Sweep remove as entradas expiradas e devolve quantas saíram.
func (i *Issuer) Sweep() int {
	now := i.clock.Now()

	i.mu.Lock()
	removed := 0
	for id, e := range i.entries {
		if !now.Before(e.code.ExpiresAt) {
			i.evictLocked(id)
			removed++
		}
	}
	size := len(i.entries)
	i.mu.Unlock()

	metrics.SetPairingCacheSize(size)
	if removed > 0 {
		i.log.Debug("pairing: entradas expiradas removidas", zap.Int("removed", removed), zap.Int("remaining", size))
	}
	return removed
}

func (i *Issuer) Start(ctx context.Context) {
	i.loopMu.Lock()
	defer i.loopMu.Unlock()
	if i.cancel != nil {
		return
	}
	ctx, i.cancel = context.WithCancel(ctx)
	i.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := i.clock.NewTicker(i.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				i.Sweep()
			}
		}
	}(i.done)
}

// Stop encerra o sweep e cancela todos os refreshes agendados.
func (i *Issuer) Stop() {
	i.loopMu.Lock()
	cancel, done := i.cancel, i.done
	i.cancel, i.done = nil, nil
	i.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	i.mu.Lock()
	for _, e := range i.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	i.mu.Unlock()
}

func (i *Issuer) Stats() Stats {
	i.mu.Lock()
	ids := make([]string, 0, len(i.entries))
	for id := range i.entries {
		ids = append(ids, id)
	}
	i.mu.Unlock()
	slices.Sort(ids)

	return Stats{
		CacheSize:         len(ids),
		CachedInstanceIDs: ids,
		TTLMs:             i.opts.TTL.Milliseconds(),
	}
}

// lookup trata uma entrada expirada como miss e a remove.
func (i *Issuer) lookup(id string) (PairingCode, bool) {
	now := i.clock.Now()

	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.entries[id]
	if !ok {
		return PairingCode{}, false
	}
	if !now.Before(e.code.ExpiresAt) {
		i.evictLocked(id)
		return PairingCode{}, false
	}
	return e.code, true
}

func (i *Issuer) issue(ctx context.Context, id string) (PairingCode, error) {
	res, err := i.provider.Connect(ctx, id)
	if err != nil {
		return PairingCode{}, fmt.Errorf("pairing: %w", err)
	}
	if res.Pairing.Empty() {
		return PairingCode{}, &provider.Error{Op: "pairing", InstanceID: id, Err: provider.ErrNoPayload}
	}

	image, err := renderImage(res.Pairing, i.opts.QRSize)
	if err != nil {
		return PairingCode{}, err
	}

	now := i.clock.Now()
	pc := PairingCode{
		InstanceID:  id,
		Code:        res.Pairing.Code,
		Image:       image,
		PairingCode: res.Pairing.PairingCode,
		IssuedAt:    now,
		ExpiresAt:   now.Add(i.opts.TTL),
	}

	i.mu.Lock()
	i.evictLocked(id)
	i.gen++
	i.entries[id] = &entry{code: pc, gen: i.gen}
	size := len(i.entries)
	i.mu.Unlock()

	metrics.SetPairingCacheSize(size)
	if err := i.instances.MarkPairing(ctx, id); err != nil {
		i.log.Debug("pairing: estado da instância não alterado", zap.String("instance_id", id), zap.Error(err))
	}
	i.log.Info("pairing: código emitido",
		zap.String("instance_id", id),
		zap.Time("expires_at", pc.ExpiresAt),
	)
	return pc, nil
}

// schedule prende o refresh à geração da entrada atual; uma entrada nova ou a
// remoção da atual torna o callback inócuo.
func (i *Issuer) schedule(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.entries[id]
	if !ok || e.timer != nil {
		return
	}
	delay := max(e.code.ExpiresAt.Sub(i.clock.Now())-i.opts.RefreshLead, 0)
	gen := e.gen
	e.timer = i.clock.AfterFunc(delay, func() {
		go i.autoRefresh(id, gen)
	})
}

func (i *Issuer) autoRefresh(id string, gen uint64) {
	i.mu.Lock()
	e, ok := i.entries[id]
	if !ok || e.gen != gen {
		i.mu.Unlock()
		return
	}
	e.timer = nil
	i.evictLocked(id)
	i.mu.Unlock()

	if _, err := i.Generate(context.Background(), id); err != nil {
		i.log.Warn("pairing: refresh automático falhou", zap.String("instance_id", id), zap.Error(err))
		return
	}
	i.log.Debug("pairing: código renovado automaticamente", zap.String("instance_id", id))
}

func (i *Issuer) evictLocked(id string) bool {
	e, ok := i.entries[id]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(i.entries, id)
	return true
}

func (i *Issuer) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := i.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
