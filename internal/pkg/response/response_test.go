package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-apime/fleet/internal/provider"
)

func TestStatusFor(t *testing.T) {
	wrapped := fmt.Errorf("registry: connect: %w", &provider.Error{Op: "connect", Err: provider.ErrNotFound})

	assert.Equal(t, http.StatusNotFound, StatusFor(wrapped, http.StatusInternalServerError))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(provider.ErrTimeout, http.StatusInternalServerError))
	assert.Equal(t, http.StatusBadGateway, StatusFor(provider.ErrRemoteUnavailable, http.StatusInternalServerError))
	assert.Equal(t, http.StatusBadGateway, StatusFor(provider.ErrNoPayload, http.StatusInternalServerError))
	assert.Equal(t, http.StatusBadRequest, StatusFor(errors.New("x"), http.StatusBadRequest))
}

func TestEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	FromError(c, &provider.Error{Op: "list", Err: provider.ErrTimeout}, http.StatusInternalServerError)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "timeout", body["kind"])

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Success(c, http.StatusOK, gin.H{"a": 1})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"a": float64(1)}, body["data"])
}
