// Package registry mantém a visão local das instâncias e a reconcilia com o provider.
//
// O cache é um snapshot guardado por mutex. Sync monta o snapshot novo fora
// do lock e troca de uma vez, então leitores veem o estado anterior ou o
// posterior, nunca uma mistura. Mutações locais feitas durante um sync
// (transições de estado, criações, remoções) carregam uma revisão e não são
// desfeitas pela troca.
package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"regexp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/open-apime/fleet/internal/metrics"
	"github.com/open-apime/fleet/internal/provider"
	"github.com/open-apime/fleet/internal/storage"
	"github.com/open-apime/fleet/internal/storage/model"
)

var ErrInvalidConfig = errors.New("registry: configuração inválida")

var instanceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

type Options struct {
	Repo       storage.InstanceRepository
	Logger     *zap.Logger
	Clock      clock.WithTicker
	GroupSize  int
	GroupPause time.Duration
	// Intn substitui a fonte aleatória do critério random.
	Intn func(n int) int
}

type Registry struct {
	provider   provider.Client
	repo       storage.InstanceRepository
	log        *zap.Logger
	clock      clock.WithTicker
	validate   *validator.Validate
	intn       func(n int) int
	groupSize  int
	groupPause time.Duration

	syncGroup  singleflight.Group
	monitoring atomic.Bool

	mu         sync.RWMutex
	records    map[string]Instance
	order      []string
	rev        uint64
	tombstones map[string]uint64
	lastSync   time.Time
}

func New(p provider.Client, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = 3
	}
	if opts.Intn == nil {
		opts.Intn = rand.IntN
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("instance_id", func(fl validator.FieldLevel) bool {
		return instanceIDPattern.MatchString(fl.Field().String())
	})

	return &Registry{
		provider:   p,
		repo:       opts.Repo,
		log:        opts.Logger,
		clock:      opts.Clock,
		validate:   v,
		intn:       opts.Intn,
		groupSize:  opts.GroupSize,
		groupPause: opts.GroupPause,
		records:    make(map[string]Instance),
		tombstones: make(map[string]uint64),
	}
}

// Restore popula o cache a partir do repositório. Usado na inicialização,
// antes do primeiro sync.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.repo == nil {
		return 0, nil
	}
	rows, err := r.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("registry: restaurar: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	restored := 0
	for _, row := range rows {
		if _, ok := r.records[row.ID]; ok {
			continue
		}
		r.records[row.ID] = fromModel(row)
		r.order = append(r.order, row.ID)
		restored++
	}
	r.log.Info("registry: cache restaurado", zap.Int("instances", restored))
	return restored, nil
}

// Sync lista as instâncias no provider e substitui o snapshot. Chamadas
// concorrentes compartilham a mesma ida ao provider; cancelar uma delas não
// derruba as outras.
func (r *Registry) Sync(ctx context.Context) (SyncResult, error) {
	shared := context.WithoutCancel(ctx)
	ch := r.syncGroup.DoChan("sync", func() (any, error) {
		return r.sync(shared)
	})

	select {
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return SyncResult{}, res.Err
		}
		return res.Val.(SyncResult), nil
	}
}

func (r *Registry) sync(ctx context.Context) (SyncResult, error) {
	r.mu.RLock()
	startRev := r.rev
	prev := maps.Clone(r.records)
	r.mu.RUnlock()

	descriptors, err := r.provider.ListInstances(ctx)
	if err != nil {
		metrics.RecordSync(err, r.clock.Now())
		return SyncResult{}, fmt.Errorf("registry: sync: %w", err)
	}

	now := r.clock.Now()
	next := make(map[string]Instance, len(descriptors))
	order := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if _, dup := next[d.ID]; dup {
			continue
		}
		old, hadOld := prev[d.ID]
		next[d.ID] = fromDescriptor(d, old, hadOld, now)
		order = append(order, d.ID)
	}

	r.mu.Lock()
	for _, id := range r.order {
		cur := r.records[id]
		if cur.rev <= startRev {
			continue
		}
		if rec, ok := next[id]; ok {
			rec.ConnectionState = cur.ConnectionState
			rec.StateChangedAt = cur.StateChangedAt
			rec.rev = cur.rev
			next[id] = rec
			continue
		}
		next[id] = cur
		order = append(order, id)
	}
	for id, rev := range r.tombstones {
		if rev > startRev {
			delete(next, id)
		}
	}
	order = slices.DeleteFunc(order, func(id string) bool {
		_, ok := next[id]
		return !ok
	})

	r.records = next
	r.order = order
	r.tombstones = make(map[string]uint64)
	r.lastSync = now
	snapshot := r.snapshotLocked(now)
	r.mu.Unlock()

	metrics.RecordSync(nil, now)
	publishMetrics(snapshot)

	r.log.Debug("registry: sync concluído", zap.Int("instances", len(snapshot)))
	return SyncResult{Count: len(snapshot), Timestamp: now}, nil
}

// List devolve o snapshot com o resumo agregado. Com fresh, sincroniza antes;
// se o sync falhar devolve o cache marcado como Stale. Sem cache algum o erro
// do sync é propagado.
func (r *Registry) List(ctx context.Context, fresh bool) (ListResult, error) {
	stale, err := r.refresh(ctx, fresh)
	if err != nil {
		return ListResult{}, err
	}

	r.mu.RLock()
	items := r.snapshotLocked(r.clock.Now())
	lastSync := r.lastSync
	r.mu.RUnlock()

	return ListResult{
		Instances: items,
		Summary:   summarize(items),
		Total:     len(items),
		LastSync:  lastSync,
		Stale:     stale,
	}, nil
}

func (r *Registry) HealthCheckAll(ctx context.Context, fresh bool) (HealthReport, error) {
	stale, err := r.refresh(ctx, fresh)
	if err != nil {
		return HealthReport{}, err
	}

	now := r.clock.Now()
	r.mu.RLock()
	items := r.snapshotLocked(now)
	r.mu.RUnlock()

	report := HealthReport{
		Instances: make([]InstanceHealth, 0, len(items)),
		CheckedAt: now,
		Stale:     stale,
	}
	scores := make([]int, 0, len(items))
	for _, inst := range items {
		report.Instances = append(report.Instances, InstanceHealth{
			ID:     inst.ID,
			State:  inst.ConnectionState,
			Score:  inst.HealthScore,
			Tier:   inst.HealthTier,
			Issues: DetectIssues(inst, now),
		})
		scores = append(scores, inst.HealthScore)
	}
	report.Overall = Overall(scores)
	return report, nil
}

func (r *Registry) refresh(ctx context.Context, fresh bool) (bool, error) {
	if !fresh {
		return false, nil
	}
	_, err := r.Sync(ctx)
	if err == nil {
		return false, nil
	}

	r.mu.RLock()
	empty := len(r.records) == 0 && r.lastSync.IsZero()
	r.mu.RUnlock()
	if empty {
		return false, err
	}
	r.log.Warn("registry: sync falhou, usando cache", zap.Error(err))
	return true, nil
}

// BestInstance escolhe uma instância open segundo o critério. Devolve nil
// quando nenhuma está open. Empates ficam com a primeira na ordem do snapshot.
func (r *Registry) BestInstance(criteria Criteria) (*Instance, error) {
	switch criteria {
	case CriteriaHealth, CriteriaLoad, CriteriaUptime, CriteriaRandom:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidCriteria, criteria)
	}

	now := r.clock.Now()
	r.mu.RLock()
	var candidates []Instance
	for _, id := range r.order {
		if inst := r.records[id]; inst.ConnectionState == StateOpen {
			candidates = append(candidates, derive(inst, now))
		}
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, nil
	}

	best := 0
	switch criteria {
	case CriteriaHealth:
		for i, c := range candidates {
			if c.HealthScore > candidates[best].HealthScore {
				best = i
			}
		}
	case CriteriaLoad:
		for i, c := range candidates {
			if c.MessagesCount < candidates[best].MessagesCount {
				best = i
			}
		}
	case CriteriaUptime:
		for i, c := range candidates {
			if c.UptimeSeconds > candidates[best].UptimeSeconds {
				best = i
			}
		}
	case CriteriaRandom:
		best = r.intn(len(candidates))
	}

	chosen := candidates[best]
	return &chosen, nil
}

func (r *Registry) Get(id string) (Instance, bool) {
	r.mu.RLock()
	inst, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return Instance{}, false
	}
	return derive(inst, r.clock.Now()), true
}

// OpenInstanceIDs devolve os ids open na ordem do snapshot.
func (r *Registry) OpenInstanceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		if r.records[id].ConnectionState == StateOpen {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) Stats() SystemStats {
	now := r.clock.Now()
	r.mu.RLock()
	items := r.snapshotLocked(now)
	lastSync := r.lastSync
	r.mu.RUnlock()

	stats := SystemStats{
		TotalInstances:   len(items),
		MonitoringActive: r.monitoring.Load(),
		LastSync:         lastSync,
	}
	scores := make([]int, 0, len(items))
	for _, inst := range items {
		if inst.ConnectionState == StateOpen {
			stats.ConnectedInstances++
		}
		stats.TotalMessages += inst.MessagesCount
		stats.TotalContacts += inst.ContactsCount
		scores = append(scores, inst.HealthScore)
	}
	stats.AverageHealth = Overall(scores).AverageScore
	return stats
}

func (r *Registry) Create(ctx context.Context, cfg InstanceConfig) (Instance, error) {
	if err := r.validate.Struct(cfg); err != nil {
		return Instance{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	created, err := r.provider.CreateInstance(ctx, cfg.ID, cfg.settings())
	if err != nil {
		return Instance{}, fmt.Errorf("registry: criar %s: %w", cfg.ID, err)
	}
	if created.Descriptor.ID == "" {
		created.Descriptor.ID = cfg.ID
	}

	now := r.clock.Now()
	r.mu.Lock()
	old, hadOld := r.records[cfg.ID]
	inst := fromDescriptor(created.Descriptor, old, hadOld, now)
	r.rev++
	inst.rev = r.rev
	if !hadOld {
		r.order = append(r.order, inst.ID)
	}
	r.records[inst.ID] = inst
	delete(r.tombstones, inst.ID)
	r.mu.Unlock()

	r.persist(ctx, inst)
	r.log.Info("registry: instância criada", zap.String("instance_id", inst.ID))
	return derive(inst, now), nil
}

// Connect pede ao provider para iniciar a conexão. Quando vem um código de
// pareamento a instância passa para pairing.
func (r *Registry) Connect(ctx context.Context, id string) (provider.ConnectResult, error) {
	res, err := r.provider.Connect(ctx, id)
	if err != nil {
		return provider.ConnectResult{}, fmt.Errorf("registry: conectar %s: %w", id, err)
	}
	if !res.Pairing.Empty() {
		if err := r.MarkPairing(ctx, id); err != nil {
			r.log.Debug("registry: estado não alterado após connect", zap.String("instance_id", id), zap.Error(err))
		}
	}
	return res, nil
}

// Disconnect não altera o estado local: o connection_update do provider é
// quem move a instância para closed.
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	if err := r.provider.Disconnect(ctx, id); err != nil {
		return fmt.Errorf("registry: desconectar %s: %w", id, err)
	}
	return nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.provider.Delete(ctx, id); err != nil {
		return fmt.Errorf("registry: remover %s: %w", id, err)
	}
	r.remove(ctx, id)
	r.log.Info("registry: instância removida", zap.String("instance_id", id))
	return nil
}

// ApplyConnectionState aplica uma transição vinda de um evento do provider.
func (r *Registry) ApplyConnectionState(ctx context.Context, id string, state State) error {
	now := r.clock.Now()

	r.mu.Lock()
	inst, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	if err := checkTransition(id, inst.ConnectionState, state); err != nil {
		r.mu.Unlock()
		return err
	}
	if inst.ConnectionState == state {
		r.mu.Unlock()
		return nil
	}
	r.rev++
	inst.ConnectionState = state
	inst.StateChangedAt = now
	inst.rev = r.rev
	r.records[id] = inst
	r.mu.Unlock()

	r.persist(ctx, inst)
	r.log.Info("registry: estado alterado",
		zap.String("instance_id", id),
		zap.String("state", string(state)),
	)
	return nil
}

// MarkPairing move a instância para pairing após a emissão de um código.
func (r *Registry) MarkPairing(ctx context.Context, id string) error {
	return r.ApplyConnectionState(ctx, id, StatePairing)
}

// SaveSnapshot grava o snapshot atual no repositório, removendo linhas de
// instâncias que não existem mais.
func (r *Registry) SaveSnapshot(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	now := r.clock.Now()
	r.mu.RLock()
	items := r.snapshotLocked(now)
	r.mu.RUnlock()

	rows := make([]model.Instance, len(items))
	for i, inst := range items {
		rows[i] = toModel(inst)
	}
	if err := r.repo.ReplaceAll(ctx, rows); err != nil {
		return fmt.Errorf("registry: persistir snapshot: %w", err)
	}
	return nil
}

func (r *Registry) remove(ctx context.Context, id string) {
	r.mu.Lock()
	if _, ok := r.records[id]; ok {
		delete(r.records, id)
		r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
	}
	r.rev++
	r.tombstones[id] = r.rev
	r.mu.Unlock()

	if r.repo == nil {
		return
	}
	if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		r.log.Warn("registry: falha ao remover do repositório", zap.String("instance_id", id), zap.Error(err))
	}
}

func (r *Registry) persist(ctx context.Context, inst Instance) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Upsert(ctx, toModel(derive(inst, r.clock.Now()))); err != nil {
		r.log.Warn("registry: falha ao persistir instância", zap.String("instance_id", inst.ID), zap.Error(err))
	}
}

func (r *Registry) setMonitoring(active bool) {
	r.monitoring.Store(active)
}

func (r *Registry) snapshotLocked(now time.Time) []Instance {
	items := make([]Instance, 0, len(r.order))
	for _, id := range r.order {
		items = append(items, derive(r.records[id], now))
	}
	return items
}

func fromDescriptor(d provider.Descriptor, old Instance, hadOld bool, now time.Time) Instance {
	inst := Instance{
		ID:              d.ID,
		ConnectionState: FromProvider(d.State),
		PhoneNumber:     NormalizePhone(d.OwnerJID),
		DisplayName:     d.ProfileName,
		MessagesCount:   d.MessagesCount,
		ContactsCount:   d.ContactsCount,
		ChatsCount:      d.ChatsCount,
		LastSeen:        now,
		StateChangedAt:  now,
	}

	switch {
	case !d.CreatedAt.IsZero():
		inst.CreatedAt = d.CreatedAt
	case hadOld && !old.CreatedAt.IsZero():
		inst.CreatedAt = old.CreatedAt
	default:
		inst.CreatedAt = now
	}

	if hadOld {
		inst.rev = old.rev
		if old.ConnectionState == inst.ConnectionState {
			inst.StateChangedAt = old.StateChangedAt
		}
		if inst.PhoneNumber == "" {
			inst.PhoneNumber = old.PhoneNumber
		}
	}
	return inst
}

func fromModel(m model.Instance) Instance {
	state := State(m.ConnectionState)
	switch state {
	case StateUninitialized, StatePairing, StateOpen, StateClosed:
	default:
		state = StateUninitialized
	}
	return Instance{
		ID:              m.ID,
		ConnectionState: state,
		PhoneNumber:     m.PhoneNumber,
		DisplayName:     m.DisplayName,
		MessagesCount:   m.MessagesCount,
		ContactsCount:   m.ContactsCount,
		ChatsCount:      m.ChatsCount,
		LastSeen:        m.LastSeen,
		CreatedAt:       m.CreatedAt,
		StateChangedAt:  m.UpdatedAt,
	}
}

func toModel(inst Instance) model.Instance {
	return model.Instance{
		ID:              inst.ID,
		ConnectionState: string(inst.ConnectionState),
		PhoneNumber:     inst.PhoneNumber,
		DisplayName:     inst.DisplayName,
		MessagesCount:   inst.MessagesCount,
		ContactsCount:   inst.ContactsCount,
		ChatsCount:      inst.ChatsCount,
		HealthScore:     inst.HealthScore,
		CreatedAt:       inst.CreatedAt,
		LastSeen:        inst.LastSeen,
	}
}

func summarize(items []Instance) Summary {
	s := Summary{
		ByState: map[State]int{StateUninitialized: 0, StatePairing: 0, StateOpen: 0, StateClosed: 0},
		ByTier:  map[Tier]int{TierExcellent: 0, TierGood: 0, TierWarning: 0, TierCritical: 0},
	}
	for _, inst := range items {
		s.ByState[inst.ConnectionState]++
		s.ByTier[inst.HealthTier]++
		s.TotalMessages += inst.MessagesCount
		s.TotalContacts += inst.ContactsCount
		s.TotalChats += inst.ChatsCount
	}
	return s
}

func publishMetrics(items []Instance) {
	byState := make(map[string]int, 4)
	scores := make([]int, 0, len(items))
	for _, inst := range items {
		byState[string(inst.ConnectionState)]++
		scores = append(scores, inst.HealthScore)
	}
	metrics.SetInstances(byState, Overall(scores).AverageScore)
}
