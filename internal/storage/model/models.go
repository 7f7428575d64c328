package model

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Instance é a linha persistida de uma instância. O estado de conexão é
// gravado como texto e reinterpretado pelo registry no Restore.
type Instance struct {
	ID              string    `json:"id"`
	ConnectionState string    `json:"connectionState"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	DisplayName     string    `json:"displayName,omitempty"`
	MessagesCount   int64     `json:"messagesCount"`
	ContactsCount   int64     `json:"contactsCount"`
	ChatsCount      int64     `json:"chatsCount"`
	HealthScore     int       `json:"healthScore"`
	CreatedAt       time.Time `json:"createdAt"`
	LastSeen        time.Time `json:"lastSeen"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// EventLog registra um webhook já processado e a ação tomada.
type EventLog struct {
	ID          string    `json:"id"`
	InstanceID  string    `json:"instanceId"`
	Type        string    `json:"type"`
	Action      string    `json:"action"`
	Payload     string    `json:"payload"`
	ProcessedAt time.Time `json:"processedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
