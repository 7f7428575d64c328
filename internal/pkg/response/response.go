// Package response padroniza o envelope JSON da API de operação.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-apime/fleet/internal/provider"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func Success(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func Error(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, envelope{Error: err.Error(), Kind: provider.Kind(err)})
}

func ErrorWithMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope{Error: msg})
}

// StatusFor traduz erros do provider em status HTTP. Erros sem sentinela
// conhecido caem em fallback.
func StatusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, provider.ErrRemoteUnavailable), errors.Is(err, provider.ErrNoPayload):
		return http.StatusBadGateway
	default:
		return fallback
	}
}

// FromError escreve o erro com o status derivado de StatusFor.
func FromError(c *gin.Context, err error, fallback int) {
	Error(c, StatusFor(err, fallback), err)
}
