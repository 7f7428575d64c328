package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/open-apime/fleet/internal/metrics"
	"github.com/open-apime/fleet/internal/pkg/batch"
	"github.com/open-apime/fleet/internal/pkg/queue"
	"github.com/open-apime/fleet/internal/pkg/response"
	"github.com/open-apime/fleet/internal/webhook"
)

const maxWebhookBody = 4 << 20

type WebhookHandlerOptions struct {
	// Secret habilita a verificação HMAC do corpo.
	Secret string
	Clock  clock.PassiveClock
	Logger *zap.Logger
}

// WebhookHandler recebe os eventos do provider e os enfileira para o pool de
// despacho. O processamento acontece fora da requisição.
type WebhookHandler struct {
	router *webhook.Router
	queue  queue.Queue
	secret string
	clock  clock.PassiveClock
	log    *zap.Logger
}

func NewWebhookHandler(router *webhook.Router, q queue.Queue, opts WebhookHandlerOptions) *WebhookHandler {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &WebhookHandler{router: router, queue: q, secret: opts.Secret, clock: opts.Clock, log: opts.Logger}
}

// RegisterIngress expõe as rotas chamadas pelo provider, sem autenticação.
func (h *WebhookHandler) RegisterIngress(r gin.IRoutes) {
	r.POST("/webhook", h.receive)
	r.POST("/webhook/*event", h.receive)
}

func (h *WebhookHandler) Register(r *gin.RouterGroup) {
	r.GET("/webhooks/stats", h.stats)
	r.POST("/webhooks/configure", h.configure)
}

func (h *WebhookHandler) receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusRequestEntityTooLarge, err)
		return
	}

	if h.secret != "" && !webhook.VerifySignature(body, c.GetHeader(webhook.SignatureHeader), h.secret) {
		h.log.Warn("webhook: assinatura inválida", zap.String("ip", c.ClientIP()))
		response.ErrorWithMessage(c, http.StatusUnauthorized, "assinatura inválida")
		return
	}

	ev, err := webhook.ParseEvent(body, h.clock.Now())
	if err != nil {
		metrics.RecordWebhookEvent(string(webhook.TypeUnknown), "rejected")
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	// modo by-events: o nome do evento vem no caminho
	if pathEvent := strings.Trim(c.Param("event"), "/"); pathEvent != "" && ev.Type == webhook.TypeUnknown {
		ev.Type = webhook.NormalizeType(pathEvent)
		ev.RawType = pathEvent
	}

	if err := h.queue.Enqueue(c.Request.Context(), ev.Queued()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		h.log.Error("webhook: falha ao enfileirar evento",
			zap.String("instance_id", ev.InstanceID),
			zap.String("event", string(ev.Type)),
			zap.Error(err),
		)
		response.Error(c, status, err)
		return
	}

	h.log.Debug("webhook: evento enfileirado",
		zap.String("event_id", ev.ID),
		zap.String("instance_id", ev.InstanceID),
		zap.String("event", string(ev.Type)),
	)
	response.Success(c, http.StatusAccepted, gin.H{"id": ev.ID, "type": ev.Type})
}

func (h *WebhookHandler) stats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.router.Stats(c.Request.Context()))
}

// configure aponta o webhook do provider para este serviço. Sem ids no corpo,
// todas as instâncias open são configuradas.
func (h *WebhookHandler) configure(c *gin.Context) {
	var req idsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
	}

	if len(req.IDs) == 0 {
		response.Success(c, http.StatusOK, h.router.ConfigureWebhooksForAllOpenInstances(c.Request.Context()))
		return
	}
	res := batch.Run(c.Request.Context(), req.IDs, batch.ID, func(ctx context.Context, id string) (any, error) {
		return nil, h.router.ConfigureWebhook(ctx, id)
	})
	response.Success(c, http.StatusOK, res)
}
