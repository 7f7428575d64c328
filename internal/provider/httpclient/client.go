// Package httpclient implementa provider.Client sobre a API REST do gateway.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/open-apime/fleet/internal/provider"
)

// Timeouts por operação. Cada chamada ao provider carrega o seu próprio prazo.
type Timeouts struct {
	List       time.Duration
	Create     time.Duration
	Connect    time.Duration
	Disconnect time.Duration
	Delete     time.Duration
	Send       time.Duration
	Webhook    time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		List:       15 * time.Second,
		Create:     20 * time.Second,
		Connect:    15 * time.Second,
		Disconnect: 10 * time.Second,
		Delete:     10 * time.Second,
		Send:       15 * time.Second,
		Webhook:    10 * time.Second,
	}
}

type Options struct {
	BaseURL    string
	APIKey     string
	Timeouts   Timeouts
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	baseURL  string
	apiKey   string
	timeouts Timeouts
	http     *http.Client
	log      *zap.Logger
}

var _ provider.Client = (*Client)(nil)

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		timeouts: withDefaults(opts.Timeouts),
		http:     hc,
		log:      log,
	}
}

func withDefaults(t Timeouts) Timeouts {
	d := DefaultTimeouts()
	if t.List <= 0 {
		t.List = d.List
	}
	if t.Create <= 0 {
		t.Create = d.Create
	}
	if t.Connect <= 0 {
		t.Connect = d.Connect
	}
	if t.Disconnect <= 0 {
		t.Disconnect = d.Disconnect
	}
	if t.Delete <= 0 {
		t.Delete = d.Delete
	}
	if t.Send <= 0 {
		t.Send = d.Send
	}
	if t.Webhook <= 0 {
		t.Webhook = d.Webhook
	}
	return t
}

type remoteCount struct {
	Message int64 `json:"Message"`
	Contact int64 `json:"Contact"`
	Chat    int64 `json:"Chat"`
}

type remoteInstance struct {
	Name             string      `json:"name"`
	InstanceName     string      `json:"instanceName"`
	ConnectionStatus string      `json:"connectionStatus"`
	State            string      `json:"state"`
	Status           string      `json:"status"`
	OwnerJID         string      `json:"ownerJid"`
	ProfileName      string      `json:"profileName"`
	CreatedAt        *time.Time  `json:"createdAt"`
	Count            remoteCount `json:"_count"`
}

func (r remoteInstance) descriptor() provider.Descriptor {
	d := provider.Descriptor{
		ID:            firstNonEmpty(r.Name, r.InstanceName),
		State:         provider.State(strings.ToLower(firstNonEmpty(r.ConnectionStatus, r.State))),
		OwnerJID:      r.OwnerJID,
		ProfileName:   r.ProfileName,
		MessagesCount: r.Count.Message,
		ContactsCount: r.Count.Contact,
		ChatsCount:    r.Count.Chat,
	}
	if r.CreatedAt != nil {
		d.CreatedAt = *r.CreatedAt
	}
	return d
}

type remotePairing struct {
	Base64      string `json:"base64"`
	Code        string `json:"code"`
	PairingCode string `json:"pairingCode"`
}

func (r remotePairing) pairing() provider.Pairing {
	return provider.Pairing{Code: r.Code, Base64: r.Base64, PairingCode: r.PairingCode}
}

func (c *Client) ListInstances(ctx context.Context) ([]provider.Descriptor, error) {
	var out []remoteInstance
	if err := c.do(ctx, "list", "", c.timeouts.List, http.MethodGet, "/instance/fetchInstances", nil, &out); err != nil {
		return nil, err
	}

	descriptors := make([]provider.Descriptor, 0, len(out))
	for _, r := range out {
		d := r.descriptor()
		if d.ID == "" {
			c.log.Warn("provider: instância sem nome ignorada")
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

type createRequest struct {
	InstanceName string `json:"instanceName"`
	QRCode       bool   `json:"qrcode"`
	Integration  string `json:"integration"`
	Number       string `json:"number,omitempty"`
	Token        string `json:"token,omitempty"`
	RejectCall   bool   `json:"rejectCall,omitempty"`
	GroupsIgnore bool   `json:"groupsIgnore,omitempty"`
	AlwaysOnline bool   `json:"alwaysOnline,omitempty"`
}

type createResponse struct {
	Instance remoteInstance `json:"instance"`
	QRCode   *remotePairing `json:"qrcode"`
}

func (c *Client) CreateInstance(ctx context.Context, id string, settings provider.Settings) (provider.Created, error) {
	integration := settings.Integration
	if integration == "" {
		integration = "WHATSAPP-BAILEYS"
	}
	req := createRequest{
		InstanceName: id,
		QRCode:       true,
		Integration:  integration,
		Number:       settings.Number,
		Token:        settings.Token,
		RejectCall:   settings.RejectCall,
		GroupsIgnore: settings.GroupsIgnore,
		AlwaysOnline: settings.AlwaysOnline,
	}

	var out createResponse
	if err := c.do(ctx, "create", id, c.timeouts.Create, http.MethodPost, "/instance/create", req, &out); err != nil {
		return provider.Created{}, err
	}

	created := provider.Created{Descriptor: out.Instance.descriptor()}
	if created.Descriptor.ID == "" {
		created.Descriptor.ID = id
	}
	if out.QRCode != nil {
		p := out.QRCode.pairing()
		created.Pairing = &p
	}
	return created, nil
}

type connectResponse struct {
	remotePairing
	Instance *remoteInstance `json:"instance"`
}

func (c *Client) Connect(ctx context.Context, id string) (provider.ConnectResult, error) {
	var out connectResponse
	path := "/instance/connect/" + url.PathEscape(id)
	if err := c.do(ctx, "connect", id, c.timeouts.Connect, http.MethodGet, path, nil, &out); err != nil {
		return provider.ConnectResult{}, err
	}

	result := provider.ConnectResult{Pairing: out.pairing()}
	if out.Instance != nil {
		result.State = out.Instance.descriptor().State
	}
	return result, nil
}

func (c *Client) Disconnect(ctx context.Context, id string) error {
	path := "/instance/logout/" + url.PathEscape(id)
	return c.do(ctx, "disconnect", id, c.timeouts.Disconnect, http.MethodDelete, path, nil, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	path := "/instance/delete/" + url.PathEscape(id)
	return c.do(ctx, "delete", id, c.timeouts.Delete, http.MethodDelete, path, nil, nil)
}

type sendRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

func (c *Client) SendMessage(ctx context.Context, id, recipient, text string) (provider.Receipt, error) {
	var out sendResponse
	path := "/message/sendText/" + url.PathEscape(id)
	if err := c.do(ctx, "send", id, c.timeouts.Send, http.MethodPost, path, sendRequest{Number: recipient, Text: text}, &out); err != nil {
		return provider.Receipt{}, err
	}
	return provider.Receipt{MessageID: out.Key.ID, Status: out.Status}, nil
}

type webhookRequest struct {
	Webhook struct {
		Enabled  bool     `json:"enabled"`
		URL      string   `json:"url"`
		Events   []string `json:"events"`
		ByEvents bool     `json:"byEvents"`
		Base64   bool     `json:"base64"`
	} `json:"webhook"`
}

func (c *Client) ConfigureWebhook(ctx context.Context, id string, hook provider.WebhookSettings) error {
	var req webhookRequest
	req.Webhook.Enabled = true
	req.Webhook.URL = hook.URL
	req.Webhook.Events = hook.Events
	req.Webhook.ByEvents = hook.ByEvents
	req.Webhook.Base64 = hook.Base64

	path := "/webhook/set/" + url.PathEscape(id)
	return c.do(ctx, "configure_webhook", id, c.timeouts.Webhook, http.MethodPost, path, req, nil)
}

// do executa uma chamada com timeout próprio e traduz falhas para a taxonomia do provider.
// Não há retry: a próxima sincronização ou refresh corrige falhas transitórias.
func (c *Client) do(ctx context.Context, op, instanceID string, timeout time.Duration, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("provider %s: marshal: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("provider %s: new request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Fleet/1.0")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &provider.Error{Op: op, InstanceID: instanceID, Err: provider.ErrTimeout}
		}
		return &provider.Error{Op: op, InstanceID: instanceID, Err: fmt.Errorf("%w: %v", provider.ErrRemoteUnavailable, err)}
	}
	defer resp.Body.Close()

	c.log.Debug("provider: resposta recebida",
		zap.String("op", op),
		zap.String("instance_id", instanceID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotFound {
		return &provider.Error{Op: op, InstanceID: instanceID, StatusCode: resp.StatusCode, Err: provider.ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &provider.Error{
			Op:         op,
			InstanceID: instanceID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", provider.ErrRemoteUnavailable, strings.TrimSpace(string(snippet))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &provider.Error{Op: op, InstanceID: instanceID, Err: provider.ErrTimeout}
		}
		return &provider.Error{Op: op, InstanceID: instanceID, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: resposta inválida: %v", provider.ErrRemoteUnavailable, err)}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
