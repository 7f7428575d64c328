package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/utils/clock"

	"github.com/open-apime/fleet/internal/config"
	"github.com/open-apime/fleet/internal/registry"
)

// StatsSource é o que o healthz lê do registry.
type StatsSource interface {
	Stats() registry.SystemStats
}

type HealthHandler struct {
	stats      StatsSource
	staleAfter time.Duration
	clock      clock.PassiveClock
}

// NewHealthHandler considera o serviço degradado quando o monitor está ativo e
// o último sync é mais antigo que staleAfter. staleAfter zero desliga a checagem.
func NewHealthHandler(stats StatsSource, staleAfter time.Duration, clk clock.PassiveClock) *HealthHandler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &HealthHandler{stats: stats, staleAfter: staleAfter, clock: clk}
}

func (h *HealthHandler) Register(r *gin.RouterGroup) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": config.Version,
			"name":    "fleet",
		})
	})

	r.GET("/healthz", h.healthz)
}

// healthz responde 200 mesmo degradado: o processo está vivo, quem falha é o
// provider.
func (h *HealthHandler) healthz(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"version": config.Version,
	}
	if h.stats == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	s := h.stats.Stats()
	body["monitoringActive"] = s.MonitoringActive
	body["instances"] = s.TotalInstances
	body["connectedInstances"] = s.ConnectedInstances
	if !s.LastSync.IsZero() {
		body["lastSync"] = s.LastSync
	}
	if h.degraded(s) {
		body["status"] = "degraded"
	}
	c.JSON(http.StatusOK, body)
}

func (h *HealthHandler) degraded(s registry.SystemStats) bool {
	if h.staleAfter <= 0 || !s.MonitoringActive {
		return false
	}
	return s.LastSync.IsZero() || h.clock.Since(s.LastSync) > h.staleAfter
}
