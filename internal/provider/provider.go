// Package provider define o contrato do gateway remoto que hospeda as instâncias.
// O orquestrador nunca fala com o WhatsApp diretamente: toda operação passa por um Client.
package provider

import (
	"context"
	"time"
)

// Client é o conjunto mínimo de operações que o orquestrador consome do provider.
type Client interface {
	ListInstances(ctx context.Context) ([]Descriptor, error)
	CreateInstance(ctx context.Context, id string, settings Settings) (Created, error)
	Connect(ctx context.Context, id string) (ConnectResult, error)
	Disconnect(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	SendMessage(ctx context.Context, id, recipient, text string) (Receipt, error)
	ConfigureWebhook(ctx context.Context, id string, hook WebhookSettings) error
}

// State é o estado de conexão tal como o provider reporta.
type State string

const (
	StateOpen       State = "open"
	StateClose      State = "close"
	StateConnecting State = "connecting"
	StateUnknown    State = ""
)

// Descriptor é a visão crua de uma instância no provider.
type Descriptor struct {
	ID            string    `json:"id"`
	State         State     `json:"state"`
	OwnerJID      string    `json:"ownerJid,omitempty"`
	ProfileName   string    `json:"profileName,omitempty"`
	MessagesCount int64     `json:"messagesCount"`
	ContactsCount int64     `json:"contactsCount"`
	ChatsCount    int64     `json:"chatsCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Settings são repassadas ao provider na criação da instância.
type Settings struct {
	Number       string `json:"number,omitempty"`
	Token        string `json:"token,omitempty"`
	Integration  string `json:"integration,omitempty"`
	RejectCall   bool   `json:"rejectCall,omitempty"`
	GroupsIgnore bool   `json:"groupsIgnore,omitempty"`
	AlwaysOnline bool   `json:"alwaysOnline,omitempty"`
}

// Pairing é o artefato de pareamento devolvido pelo provider.
type Pairing struct {
	Code        string `json:"code,omitempty"`
	Base64      string `json:"base64,omitempty"`
	PairingCode string `json:"pairingCode,omitempty"`
}

// Empty informa se o provider não devolveu nenhum conteúdo utilizável.
func (p Pairing) Empty() bool {
	return p.Code == "" && p.Base64 == ""
}

type Created struct {
	Descriptor Descriptor `json:"instance"`
	Pairing    *Pairing   `json:"pairing,omitempty"`
}

// ConnectResult traz o código de pareamento ou, se a instância já estiver
// conectada, apenas o estado atual.
type ConnectResult struct {
	Pairing Pairing `json:"pairing"`
	State   State   `json:"state,omitempty"`
}

type Receipt struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type WebhookSettings struct {
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	ByEvents bool     `json:"byEvents"`
	Base64   bool     `json:"base64"`
}
