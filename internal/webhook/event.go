package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/open-apime/fleet/internal/pkg/queue"
)

var (
	ErrInvalidPayload  = errors.New("webhook: payload inválido")
	ErrMissingInstance = errors.New("webhook: evento sem instância")
	ErrNoMessage       = errors.New("webhook: evento sem mensagem")
)

type EventType string

const (
	TypeMessageUpsert       EventType = "message_upsert"
	TypeQRCodeUpdated       EventType = "qrcode_updated"
	TypeConnectionUpdate    EventType = "connection_update"
	TypeMessageStatusUpdate EventType = "message_status_update"
	TypeUnknown             EventType = "unknown"
)

// Event é um webhook do provider já classificado. Payload é o campo data do
// corpo original.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	RawType    string          `json:"rawType,omitempty"`
	InstanceID string          `json:"instanceId"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

type envelope struct {
	Event      string          `json:"event"`
	Instance   string          `json:"instance"`
	InstanceID string          `json:"instanceId"`
	Data       json.RawMessage `json:"data"`
}

// ParseEvent lê o envelope {event, instance, data}. Tipos desconhecidos não são
// erro: voltam como TypeUnknown.
func ParseEvent(body []byte, now time.Time) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	instance := env.Instance
	if instance == "" {
		instance = env.InstanceID
	}
	if instance == "" {
		return Event{}, ErrMissingInstance
	}

	return Event{
		ID:         uuid.NewString(),
		Type:       NormalizeType(env.Event),
		RawType:    env.Event,
		InstanceID: instance,
		Payload:    env.Data,
		ReceivedAt: now,
	}, nil
}

// NormalizeType aceita as grafias usuais: "messages.upsert", "MESSAGES_UPSERT",
// "messages-upsert", "message_upsert".
func NormalizeType(name string) EventType {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(".", "_", "-", "_", "/", "").Replace(n)

	switch n {
	case "messages_upsert", "message_upsert":
		return TypeMessageUpsert
	case "qrcode_updated", "qrcode_update":
		return TypeQRCodeUpdated
	case "connection_update", "connection_updated":
		return TypeConnectionUpdate
	case "messages_update", "message_update", "message_status_update":
		return TypeMessageStatusUpdate
	default:
		return TypeUnknown
	}
}

// Queued converte o evento para a fila de despacho.
func (e Event) Queued() queue.Event {
	return queue.Event{
		ID:         e.ID,
		InstanceID: e.InstanceID,
		Type:       string(e.Type),
		Payload:    e.Payload,
		ReceivedAt: e.ReceivedAt,
	}
}

func FromQueued(q *queue.Event) Event {
	return Event{
		ID:         q.ID,
		Type:       NormalizeType(q.Type),
		RawType:    q.Type,
		InstanceID: q.InstanceID,
		Payload:    q.Payload,
		ReceivedAt: q.ReceivedAt,
	}
}
