package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/open-apime/fleet/internal/pkg/batch"
	"github.com/open-apime/fleet/internal/pkg/response"
	"github.com/open-apime/fleet/internal/registry"
	"github.com/open-apime/fleet/internal/storage"
)

const defaultEventsLimit = 50

type batchFunc func(ctx context.Context, ids []string) (batch.Result, error)

type InstanceHandler struct {
	registry   *registry.Registry
	events     storage.EventLogRepository
	syncOnRead bool
	log        *zap.Logger
}

// NewInstanceHandler monta o handler. Com syncOnRead as leituras sincronizam
// com o provider salvo ?fresh=false.
func NewInstanceHandler(reg *registry.Registry, events storage.EventLogRepository, syncOnRead bool, log *zap.Logger) *InstanceHandler {
	return &InstanceHandler{registry: reg, events: events, syncOnRead: syncOnRead, log: log}
}

func (h *InstanceHandler) Register(r *gin.RouterGroup) {
	r.GET("/instances", h.list)
	r.GET("/instances/health", h.health)
	r.GET("/instances/best", h.best)
	r.GET("/instances/stats", h.stats)
	r.POST("/instances", h.create)
	r.POST("/instances/batch", h.createMany)
	r.POST("/instances/batch/connect", h.connectMany)
	r.POST("/instances/batch/disconnect", h.disconnectMany)
	r.POST("/instances/batch/delete", h.deleteMany)
	r.POST("/instances/:id/connect", h.connect)
	r.POST("/instances/:id/disconnect", h.disconnect)
	r.DELETE("/instances/:id", h.delete)
	r.GET("/instances/:id/events", h.listEvents)
}

type createManyRequest struct {
	Instances []registry.InstanceConfig `json:"instances"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (h *InstanceHandler) fresh(c *gin.Context) bool {
	if v, err := strconv.ParseBool(c.Query("fresh")); err == nil {
		return v
	}
	return h.syncOnRead
}

func (h *InstanceHandler) list(c *gin.Context) {
	res, err := h.registry.List(c.Request.Context(), h.fresh(c))
	if err != nil {
		response.FromError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *InstanceHandler) health(c *gin.Context) {
	report, err := h.registry.HealthCheckAll(c.Request.Context(), h.fresh(c))
	if err != nil {
		response.FromError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, http.StatusOK, report)
}

func (h *InstanceHandler) best(c *gin.Context) {
	criteria := registry.Criteria(c.DefaultQuery("criteria", string(registry.CriteriaHealth)))
	inst, err := h.registry.BestInstance(criteria)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	if inst == nil {
		response.ErrorWithMessage(c, http.StatusNotFound, "nenhuma instância conectada")
		return
	}
	response.Success(c, http.StatusOK, inst)
}

func (h *InstanceHandler) stats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.registry.Stats())
}

func (h *InstanceHandler) create(c *gin.Context) {
	var cfg registry.InstanceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	inst, err := h.registry.Create(c.Request.Context(), cfg)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, inst)
}

func (h *InstanceHandler) createMany(c *gin.Context) {
	var req createManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	res, err := h.registry.CreateMany(c.Request.Context(), req.Instances)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *InstanceHandler) connectMany(c *gin.Context) {
	h.runMany(c, h.registry.ConnectMany)
}

func (h *InstanceHandler) disconnectMany(c *gin.Context) {
	h.runMany(c, h.registry.DisconnectMany)
}

func (h *InstanceHandler) deleteMany(c *gin.Context) {
	h.runMany(c, h.registry.DeleteMany)
}

func (h *InstanceHandler) connect(c *gin.Context) {
	res, err := h.registry.Connect(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *InstanceHandler) disconnect(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Disconnect(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "disconnected": true})
}

func (h *InstanceHandler) delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *InstanceHandler) listEvents(c *gin.Context) {
	if h.events == nil {
		response.ErrorWithMessage(c, http.StatusNotImplemented, "event log indisponível")
		return
	}
	limit := defaultEventsLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, 500)
	}
	logs, err := h.events.ListByInstance(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, logs)
}

func (h *InstanceHandler) runMany(c *gin.Context, fn batchFunc) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	res, err := fn(c.Request.Context(), req.IDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *InstanceHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidConfig), errors.Is(err, registry.ErrEmptyBatch):
		response.Error(c, http.StatusBadRequest, err)
	default:
		h.log.Warn("instâncias: operação falhou", zap.String("path", c.FullPath()), zap.Error(err))
		response.FromError(c, err, http.StatusInternalServerError)
	}
}
