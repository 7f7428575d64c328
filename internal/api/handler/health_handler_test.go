package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/open-apime/fleet/internal/registry"
)

type staticStats registry.SystemStats

func (s staticStats) Stats() registry.SystemStats { return registry.SystemStats(s) }

func healthz(t *testing.T, h *HealthHandler) map[string]any {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h.Register(engine.Group("/api"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthzReportsMonitor(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clocktesting.NewFakePassiveClock(now)

	body := healthz(t, NewHealthHandler(staticStats{
		TotalInstances:     3,
		ConnectedInstances: 2,
		MonitoringActive:   true,
		LastSync:           now.Add(-30 * time.Second),
	}, 3*time.Minute, clk))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["monitoringActive"])
	assert.EqualValues(t, 3, body["instances"])
	assert.EqualValues(t, 2, body["connectedInstances"])
	assert.Equal(t, "2024-05-01T11:59:30Z", body["lastSync"])
}

func TestHealthzDegradedWhenSyncIsOld(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clocktesting.NewFakePassiveClock(now)

	old := healthz(t, NewHealthHandler(staticStats{MonitoringActive: true, LastSync: now.Add(-10 * time.Minute)}, 3*time.Minute, clk))
	assert.Equal(t, "degraded", old["status"])

	never := healthz(t, NewHealthHandler(staticStats{MonitoringActive: true}, 3*time.Minute, clk))
	assert.Equal(t, "degraded", never["status"])
	assert.NotContains(t, never, "lastSync")

	// sem monitor não há expectativa de sync periódico
	idle := healthz(t, NewHealthHandler(staticStats{LastSync: now.Add(-time.Hour)}, 3*time.Minute, clk))
	assert.Equal(t, "ok", idle["status"])
}
