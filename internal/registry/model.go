package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/open-apime/fleet/internal/provider"
)

var (
	ErrEmptyBatch      = errors.New("registry: lista de instâncias vazia")
	ErrInvalidCriteria = errors.New("registry: critério inválido")
	// ErrUnknownInstance embrulha provider.ErrNotFound para que a API responda 404.
	ErrUnknownInstance = fmt.Errorf("registry: instância desconhecida: %w", provider.ErrNotFound)
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StatePairing       State = "pairing"
	StateOpen          State = "open"
	StateClosed        State = "closed"
)

type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierWarning   Tier = "warning"
	TierCritical  Tier = "critical"
)

type Criteria string

const (
	CriteriaHealth Criteria = "health"
	CriteriaLoad   Criteria = "load"
	CriteriaUptime Criteria = "uptime"
	CriteriaRandom Criteria = "random"
)

// Instance é a visão local de uma instância. HealthScore, HealthTier e
// UptimeSeconds são derivados no momento da leitura.
type Instance struct {
	ID              string    `json:"id"`
	ConnectionState State     `json:"connectionState"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	DisplayName     string    `json:"displayName,omitempty"`
	MessagesCount   int64     `json:"messagesCount"`
	ContactsCount   int64     `json:"contactsCount"`
	ChatsCount      int64     `json:"chatsCount"`
	HealthScore     int       `json:"healthScore"`
	HealthTier      Tier      `json:"healthTier"`
	UptimeSeconds   int64     `json:"uptimeSeconds"`
	LastSeen        time.Time `json:"lastSeen"`
	CreatedAt       time.Time `json:"createdAt"`
	StateChangedAt  time.Time `json:"stateChangedAt"`

	// revisão da última mutação local; protege contra rollback por um sync concorrente
	rev uint64
}

type Summary struct {
	ByState       map[State]int `json:"byState"`
	ByTier        map[Tier]int  `json:"byTier"`
	TotalMessages int64         `json:"totalMessages"`
	TotalContacts int64         `json:"totalContacts"`
	TotalChats    int64         `json:"totalChats"`
}

type ListResult struct {
	Instances []Instance `json:"instances"`
	Summary   Summary    `json:"summary"`
	Total     int        `json:"total"`
	LastSync  time.Time  `json:"lastSync"`
	// Stale indica que o sync falhou e o snapshot em cache foi devolvido.
	Stale bool `json:"stale"`
}

type SyncResult struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

type Issue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type InstanceHealth struct {
	ID     string  `json:"id"`
	State  State   `json:"connectionState"`
	Score  int     `json:"score"`
	Tier   Tier    `json:"tier"`
	Issues []Issue `json:"issues"`
}

type OverallHealth struct {
	AverageScore float64 `json:"averageScore"`
	Status       Tier    `json:"status"`
	Healthy      int     `json:"healthy"`
	Total        int     `json:"total"`
}

type HealthReport struct {
	Instances []InstanceHealth `json:"instances"`
	Overall   OverallHealth    `json:"overall"`
	CheckedAt time.Time        `json:"checkedAt"`
	Stale     bool             `json:"stale"`
}

type SystemStats struct {
	TotalInstances     int       `json:"totalInstances"`
	ConnectedInstances int       `json:"connectedInstances"`
	MonitoringActive   bool      `json:"monitoringActive"`
	LastSync           time.Time `json:"lastSync"`
	TotalMessages      int64     `json:"totalMessages"`
	TotalContacts      int64     `json:"totalContacts"`
	AverageHealth      float64   `json:"averageHealth"`
}

// InstanceConfig é a entrada de criação, validada antes de chegar ao provider.
type InstanceConfig struct {
	ID           string `json:"instanceName" validate:"required,max=64,instance_id"`
	Number       string `json:"number,omitempty" validate:"omitempty,numeric,min=8,max=15"`
	Token        string `json:"token,omitempty" validate:"omitempty,max=256"`
	Integration  string `json:"integration,omitempty" validate:"omitempty,oneof=WHATSAPP-BAILEYS WHATSAPP-BUSINESS"`
	RejectCall   bool   `json:"rejectCall,omitempty"`
	GroupsIgnore bool   `json:"groupsIgnore,omitempty"`
	AlwaysOnline bool   `json:"alwaysOnline,omitempty"`
}

func (c InstanceConfig) settings() provider.Settings {
	return provider.Settings{
		Number:       c.Number,
		Token:        c.Token,
		Integration:  c.Integration,
		RejectCall:   c.RejectCall,
		GroupsIgnore: c.GroupsIgnore,
		AlwaysOnline: c.AlwaysOnline,
	}
}
