package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable cobre falhas de transporte e respostas não-2xx.
	ErrRemoteUnavailable = errors.New("provider indisponível")
	ErrTimeout           = errors.New("provider: timeout")
	ErrNotFound          = errors.New("instância não encontrada no provider")
	// ErrNoPayload indica que o provider respondeu sem código de pareamento.
	ErrNoPayload = errors.New("provider não retornou código de pareamento")
)

// Error carrega o contexto de uma chamada que falhou. Use errors.Is com os
// sentinelas acima para classificar.
type Error struct {
	Op         string
	InstanceID string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := "provider: " + e.Op
	if e.InstanceID != "" {
		msg += " [" + e.InstanceID + "]"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind devolve um rótulo curto para logs e métricas.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoPayload):
		return "no_payload"
	case errors.Is(err, ErrRemoteUnavailable):
		return "remote_unavailable"
	default:
		return "internal_error"
	}
}
