// Package webhook recebe os eventos do provider, atualiza o registry e
// responde mensagens de usuários através do classificador.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/open-apime/fleet/internal/classifier"
	"github.com/open-apime/fleet/internal/metrics"
	"github.com/open-apime/fleet/internal/pkg/batch"
	"github.com/open-apime/fleet/internal/pkg/queue"
	"github.com/open-apime/fleet/internal/provider"
	"github.com/open-apime/fleet/internal/registry"
	"github.com/open-apime/fleet/internal/storage"
	"github.com/open-apime/fleet/internal/storage/model"
)

var ErrNoCallbackURL = errors.New("webhook: URL de callback não configurada")

type Action string

const (
	ActionIgnored            Action = "ignored"
	ActionDuplicate          Action = "duplicate"
	ActionResponded          Action = "responded"
	ActionNoResponse         Action = "no_response"
	ActionResponseFailed     Action = "response_failed"
	ActionQRCodeUpdated      Action = "qrcode_updated"
	ActionConnectionUpdated  Action = "connection_updated"
	ActionStatusAcknowledged Action = "status_acknowledged"
)

// Registry é a parte do registry usada pelo router.
type Registry interface {
	ApplyConnectionState(ctx context.Context, id string, state registry.State) error
	OpenInstanceIDs() []string
	Sync(ctx context.Context) (registry.SyncResult, error)
}

// PairingCache descarta códigos de pareamento de instâncias que conectaram.
type PairingCache interface {
	Invalidate(id string)
}

type Result struct {
	Action            Action                     `json:"action"`
	Processed         bool                       `json:"processed"`
	EventType         EventType                  `json:"eventType"`
	InstanceID        string                     `json:"instanceId"`
	Reason            string                     `json:"reason,omitempty"`
	Message           *Message                   `json:"message,omitempty"`
	Classification    *classifier.Classification `json:"classification,omitempty"`
	QRCode            *QRCode                    `json:"qrcode,omitempty"`
	State             registry.State             `json:"state,omitempty"`
	WebhookConfigured bool                       `json:"webhookConfigured,omitempty"`
	Status            *StatusUpdate              `json:"status,omitempty"`
	Error             string                     `json:"error,omitempty"`
}

type ProcessingStats struct {
	TotalReceived      int64     `json:"totalReceived"`
	TotalProcessed     int64     `json:"totalProcessed"`
	TotalResponsesSent int64     `json:"totalResponsesSent"`
	LastActivity       time.Time `json:"lastActivity"`
	QueueSize          int       `json:"queueSize"`
	UnprocessedCount   int       `json:"unprocessedCount"`
	PendingDispatch    int64     `json:"pendingDispatch"`
}

type Options struct {
	Classifier  classifier.Classifier
	Seen        storage.SeenSet
	EventLog    storage.EventLogRepository
	Pairing     PairingCache
	Queue       queue.Queue
	CallbackURL string
	Events      []string
	// PruneAfter é a janela do log de mensagens e do event log persistido.
	PruneAfter    time.Duration
	PruneInterval time.Duration
	Clock         clock.WithTicker
	Logger        *zap.Logger
}

type loggedMessage struct {
	instanceID string
	message    Message
	receivedAt time.Time
	processed  bool
}

type Router struct {
	provider   provider.Client
	registry   Registry
	classifier classifier.Classifier
	seen       storage.SeenSet
	eventLog   storage.EventLogRepository
	pairing    PairingCache
	queue      queue.Queue
	hook       provider.WebhookSettings
	pruneAfter time.Duration
	pruneEvery time.Duration
	clock      clock.WithTicker
	log        *zap.Logger

	mu       sync.Mutex
	stats    ProcessingStats
	messages []*loggedMessage

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRouter(p provider.Client, reg Registry, opts Options) *Router {
	if opts.Classifier == nil {
		opts.Classifier = classifier.NewKeywords()
	}
	if opts.PruneAfter <= 0 {
		opts.PruneAfter = 24 * time.Hour
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Router{
		provider:   p,
		registry:   reg,
		classifier: opts.Classifier,
		seen:       opts.Seen,
		eventLog:   opts.EventLog,
		pairing:    opts.Pairing,
		queue:      opts.Queue,
		hook: provider.WebhookSettings{
			URL:    opts.CallbackURL,
			Events: slices.Clone(opts.Events),
			Base64: true,
		},
		pruneAfter: opts.PruneAfter,
		pruneEvery: opts.PruneInterval,
		clock:      opts.Clock,
		log:        opts.Logger,
	}
}

// Handle despacha um evento pelo tipo. Erros de payload voltam como erro;
// falhas do provider e transições rejeitadas são dados do resultado.
func (r *Router) Handle(ctx context.Context, ev Event) (Result, error) {
	now := r.clock.Now()
	r.mu.Lock()
	r.stats.TotalReceived++
	r.stats.LastActivity = now
	r.mu.Unlock()

	var (
		res Result
		err error
	)
	switch ev.Type {
	case TypeMessageUpsert:
		res, err = r.handleMessage(ctx, ev, now)
	case TypeQRCodeUpdated:
		res, err = r.handleQRCode(ev)
	case TypeConnectionUpdate:
		res, err = r.handleConnection(ctx, ev)
	case TypeMessageStatusUpdate:
		res, err = r.handleStatus(ev)
	default:
		res = Result{Action: ActionIgnored, Reason: "unknown_event"}
	}
	if err != nil {
		r.log.Warn("webhook: evento descartado",
			zap.String("instance_id", ev.InstanceID),
			zap.String("event", string(ev.Type)),
			zap.Error(err),
		)
		return Result{}, err
	}

	res.EventType = ev.Type
	res.InstanceID = ev.InstanceID
	if res.Processed {
		r.mu.Lock()
		r.stats.TotalProcessed++
		r.mu.Unlock()
	}

	metrics.RecordWebhookEvent(string(ev.Type), string(res.Action))
	r.record(ctx, ev, res)
	return res, nil
}

func (r *Router) handleMessage(ctx context.Context, ev Event, now time.Time) (Result, error) {
	msg, err := extractMessage(ev.Payload)
	if err != nil {
		return Result{}, err
	}
	res := Result{Processed: true, Message: &msg}

	if msg.ID != "" && r.seen != nil {
		dup, err := r.seen.Seen(ctx, ev.InstanceID+":"+msg.ID)
		switch {
		case err != nil:
			r.log.Warn("webhook: falha na deduplicação, seguindo", zap.String("instance_id", ev.InstanceID), zap.Error(err))
		case dup:
			res.Action = ActionDuplicate
			return res, nil
		}
	}

	// eco de mensagem enviada pela própria instância
	if !msg.IsFromUser {
		res.Action = ActionIgnored
		res.Reason = "from_me"
		return res, nil
	}
	if msg.IsGroup {
		res.Action = ActionIgnored
		res.Reason = "group"
		return res, nil
	}
	if msg.IsBroadcast {
		res.Action = ActionIgnored
		res.Reason = "broadcast"
		return res, nil
	}
	if msg.From == "" {
		res.Action = ActionIgnored
		res.Reason = "no_sender"
		return res, nil
	}

	entry := r.logMessage(ev.InstanceID, msg, now)

	c, err := r.classifier.Classify(ctx, msg.Text)
	if err != nil {
		return Result{}, fmt.Errorf("webhook: classificar mensagem: %w", err)
	}
	res.Classification = &c

	if !c.ShouldRespond {
		r.markProcessed(entry)
		res.Action = ActionNoResponse
		return res, nil
	}

	if _, err := r.provider.SendMessage(ctx, ev.InstanceID, msg.From, c.ResponseText); err != nil {
		r.log.Warn("webhook: falha ao enviar resposta",
			zap.String("instance_id", ev.InstanceID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		res.Action = ActionResponseFailed
		res.Error = err.Error()
		return res, nil
	}

	r.mu.Lock()
	r.stats.TotalResponsesSent++
	entry.processed = true
	r.mu.Unlock()
	metrics.RecordResponseSent()

	r.log.Info("webhook: resposta enviada",
		zap.String("instance_id", ev.InstanceID),
		zap.String("message_id", msg.ID),
		zap.String("tier", string(c.Tier)),
	)
	res.Action = ActionResponded
	return res, nil
}

// handleQRCode só normaliza o payload; o estado da instância é do registry.
func (r *Router) handleQRCode(ev Event) (Result, error) {
	qr, err := extractQRCode(ev.Payload)
	if err != nil {
		return Result{}, err
	}
	return Result{Action: ActionQRCodeUpdated, Processed: true, QRCode: &qr}, nil
}

func (r *Router) handleConnection(ctx context.Context, ev Event) (Result, error) {
	upd, err := extractConnection(ev.Payload)
	if err != nil {
		return Result{}, err
	}
	state := registry.FromProvider(upd.State)
	res := Result{Action: ActionConnectionUpdated, Processed: true, State: state}

	if err := r.registry.ApplyConnectionState(ctx, ev.InstanceID, state); err != nil {
		r.log.Warn("webhook: transição não aplicada, aguardando sync",
			zap.String("instance_id", ev.InstanceID),
			zap.String("state", string(state)),
			zap.Error(err),
		)
		res.Error = err.Error()
	}

	if state == registry.StateOpen {
		if r.pairing != nil {
			r.pairing.Invalidate(ev.InstanceID)
		}
		if err := r.ConfigureWebhook(ctx, ev.InstanceID); err != nil {
			r.log.Warn("webhook: falha ao configurar webhook", zap.String("instance_id", ev.InstanceID), zap.Error(err))
			if res.Error != "" {
				res.Error += "; "
			}
			res.Error += err.Error()
		} else {
			res.WebhookConfigured = true
		}
	}
	return res, nil
}

func (r *Router) handleStatus(ev Event) (Result, error) {
	s, err := extractStatus(ev.Payload)
	if err != nil {
		return Result{}, err
	}
	return Result{Action: ActionStatusAcknowledged, Processed: true, Status: &s}, nil
}

// ConfigureWebhook (re)instala a assinatura de eventos na instância. É
// idempotente do lado do provider.
func (r *Router) ConfigureWebhook(ctx context.Context, id string) error {
	if r.hook.URL == "" {
		return ErrNoCallbackURL
	}
	if err := r.provider.ConfigureWebhook(ctx, id, r.hook); err != nil {
		return fmt.Errorf("webhook: configurar %s: %w", id, err)
	}
	r.log.Debug("webhook: assinatura configurada", zap.String("instance_id", id), zap.String("url", r.hook.URL))
	return nil
}

func (r *Router) ConfigureWebhooksForAllOpenInstances(ctx context.Context) batch.Result {
	ids := r.registry.OpenInstanceIDs()
	res := batch.Run(ctx, ids, batch.ID, func(ctx context.Context, id string) (any, error) {
		return nil, r.ConfigureWebhook(ctx, id)
	})
	metrics.RecordBatch("configure_webhook", res.Successful, res.Failed)
	r.log.Info("webhook: assinaturas configuradas",
		zap.Int("total", res.Total),
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
	)
	return res
}

// ConfigureWebhooksAfterSync sincroniza o registry antes de configurar, para
// que uma base recém-criada não resulte em lote vazio. Se o sync falhar, usa
// o que estiver em cache.
func (r *Router) ConfigureWebhooksAfterSync(ctx context.Context) batch.Result {
	if _, err := r.registry.Sync(ctx); err != nil {
		r.log.Warn("webhook: sync antes da configuração falhou, usando cache", zap.Error(err))
	}
	return r.ConfigureWebhooksForAllOpenInstances(ctx)
}

func (r *Router) Stats(ctx context.Context) ProcessingStats {
	r.mu.Lock()
	stats := r.stats
	stats.QueueSize = len(r.messages)
	for _, m := range r.messages {
		if !m.processed {
			stats.UnprocessedCount++
		}
	}
	r.mu.Unlock()

	if r.queue != nil {
		if n, err := r.queue.Size(ctx); err == nil {
			stats.PendingDispatch = n
		}
	}
	return stats
}

// Prune remove do log de mensagens as entradas mais antigas que a janela.
func (r *Router) Prune() int {
	cutoff := r.clock.Now().Add(-r.pruneAfter)

	r.mu.Lock()
	before := len(r.messages)
	r.messages = slices.DeleteFunc(r.messages, func(m *loggedMessage) bool {
		return m.receivedAt.Before(cutoff)
	})
	removed := before - len(r.messages)
	r.mu.Unlock()
	return removed
}

// Start inicia a limpeza periódica do log de mensagens e do event log.
func (r *Router) Start(ctx context.Context) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := r.clock.NewTicker(r.pruneEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				r.janitor(ctx)
			}
		}
	}(r.done)
}

func (r *Router) Stop() {
	r.loopMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Router) janitor(ctx context.Context) {
	removed := r.Prune()
	var purged int64
	if r.eventLog != nil {
		n, err := r.eventLog.DeleteBefore(ctx, r.clock.Now().Add(-r.pruneAfter))
		if err != nil {
			r.log.Warn("webhook: falha ao limpar event log", zap.Error(err))
		}
		purged = n
	}
	if removed > 0 || purged > 0 {
		r.log.Debug("webhook: limpeza concluída", zap.Int("messages", removed), zap.Int64("event_logs", purged))
	}
}

func (r *Router) logMessage(instanceID string, msg Message, now time.Time) *loggedMessage {
	entry := &loggedMessage{instanceID: instanceID, message: msg, receivedAt: now}
	r.mu.Lock()
	r.messages = append(r.messages, entry)
	r.mu.Unlock()
	return entry
}

func (r *Router) markProcessed(entry *loggedMessage) {
	r.mu.Lock()
	entry.processed = true
	r.mu.Unlock()
}

// record grava o evento no event log. Falhas não afetam o processamento.
func (r *Router) record(ctx context.Context, ev Event, res Result) {
	if r.eventLog == nil {
		return
	}
	_, err := r.eventLog.Create(ctx, model.EventLog{
		InstanceID:  ev.InstanceID,
		Type:        string(ev.Type),
		Action:      string(res.Action),
		Payload:     string(ev.Payload),
		ProcessedAt: r.clock.Now(),
		CreatedAt:   ev.ReceivedAt,
	})
	if err != nil {
		r.log.Debug("webhook: falha ao gravar event log", zap.String("instance_id", ev.InstanceID), zap.Error(err))
	}
}
