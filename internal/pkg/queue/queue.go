// Package queue desacopla a ingestão HTTP de webhooks do processamento.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrClosed = errors.New("queue: fechada")
	ErrFull   = errors.New("queue: cheia")
)

// Event é um webhook do provider aguardando processamento. Payload guarda o
// corpo original para que o parse aconteça no worker.
type Event struct {
	ID         string          `json:"id"`
	InstanceID string          `json:"instanceId"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

type Queue interface {
	Enqueue(ctx context.Context, event Event) error
	// Dequeue devolve (nil, nil) quando o timeout expira sem eventos.
	Dequeue(ctx context.Context, timeout time.Duration) (*Event, error)
	Size(ctx context.Context) (int64, error)
	Close() error
}
