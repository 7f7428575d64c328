package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/open-apime/fleet/internal/pairing"
	"github.com/open-apime/fleet/internal/pkg/response"
	"github.com/open-apime/fleet/internal/registry"
)

type PairingHandler struct {
	issuer *pairing.Issuer
	log    *zap.Logger
}

func NewPairingHandler(issuer *pairing.Issuer, log *zap.Logger) *PairingHandler {
	return &PairingHandler{issuer: issuer, log: log}
}

func (h *PairingHandler) Register(r *gin.RouterGroup) {
	r.GET("/pairing/stats", h.stats)
	r.POST("/pairing/batch", h.generateMany)
	r.POST("/pairing/instances", h.createInstance)
	r.GET("/pairing/:id", h.generate)
	r.POST("/pairing/:id/refresh", h.refresh)
	r.GET("/pairing/:id/valid", h.valid)
	r.GET("/pairing/:id/png", h.png)
}

func (h *PairingHandler) generate(c *gin.Context) {
	id := c.Param("id")
	autoRefresh, _ := strconv.ParseBool(c.Query("autoRefresh"))

	var (
		pc  pairing.PairingCode
		err error
	)
	if autoRefresh {
		pc, err = h.issuer.GenerateWithAutoRefresh(c.Request.Context(), id)
	} else {
		pc, err = h.issuer.Generate(c.Request.Context(), id)
	}
	if err != nil {
		h.writeError(c, id, err)
		return
	}
	response.Success(c, http.StatusOK, pc)
}

func (h *PairingHandler) refresh(c *gin.Context) {
	id := c.Param("id")
	pc, err := h.issuer.Refresh(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, id, err)
		return
	}
	response.Success(c, http.StatusOK, pc)
}

func (h *PairingHandler) valid(c *gin.Context) {
	id := c.Param("id")
	response.Success(c, http.StatusOK, gin.H{"instanceId": id, "valid": h.issuer.IsValid(id)})
}

func (h *PairingHandler) png(c *gin.Context) {
	id := c.Param("id")
	pc, err := h.issuer.Generate(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, id, err)
		return
	}
	img, err := pc.PNG()
	if err != nil {
		response.Error(c, http.StatusBadGateway, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", img)
}

func (h *PairingHandler) generateMany(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	if len(req.IDs) == 0 {
		response.Error(c, http.StatusBadRequest, registry.ErrEmptyBatch)
		return
	}
	response.Success(c, http.StatusOK, h.issuer.GenerateMany(c.Request.Context(), req.IDs))
}

func (h *PairingHandler) createInstance(c *gin.Context) {
	var cfg registry.InstanceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	res, err := h.issuer.CreateInstanceWithCode(c.Request.Context(), cfg)
	if err != nil {
		h.writeError(c, cfg.ID, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

func (h *PairingHandler) stats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.issuer.Stats())
}

func (h *PairingHandler) writeError(c *gin.Context, id string, err error) {
	if errors.Is(err, registry.ErrInvalidConfig) {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	h.log.Warn("pairing: falha ao emitir código", zap.String("instance_id", id), zap.Error(err))
	response.FromError(c, err, http.StatusInternalServerError)
}
