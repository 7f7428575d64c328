// Package providertest fornece um provider.Client em memória para testes.
package providertest

import (
	"context"
	"slices"
	"sync"

	"github.com/open-apime/fleet/internal/provider"
)

type SentMessage struct {
	InstanceID string
	Recipient  string
	Text       string
}

// Fake registra chamadas e devolve respostas configuradas. Os campos podem
// ser ajustados entre chamadas; o acesso é serializado por mutex.
type Fake struct {
	mu sync.Mutex

	Instances      []provider.Descriptor
	ListErr        error
	CreateErr      map[string]error
	ConnectResults map[string]provider.ConnectResult
	ConnectErr     map[string]error
	DisconnectErr  map[string]error
	DeleteErr      map[string]error
	SendErr        error
	WebhookErr     map[string]error

	// OnList roda dentro de ListInstances, antes da resposta. Serve para
	// simular mutações concorrentes com um sync em andamento.
	OnList func()
	// ConnectGate, se definido, bloqueia Connect até ser fechado.
	ConnectGate chan struct{}

	calls    map[string]int
	Sent     []SentMessage
	Webhooks map[string]provider.WebhookSettings
	Created  []string
}

func New(instances ...provider.Descriptor) *Fake {
	return &Fake{Instances: instances}
}

var _ provider.Client = (*Fake)(nil)

func (f *Fake) record(op string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

// Calls devolve quantas vezes a operação foi chamada.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) SetInstances(instances ...provider.Descriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Instances = instances
}

func (f *Fake) SetListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListErr = err
}

func (f *Fake) SetConnect(id string, res provider.ConnectResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectResults == nil {
		f.ConnectResults = make(map[string]provider.ConnectResult)
	}
	f.ConnectResults[id] = res
}

func (f *Fake) SentMessages() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Sent)
}

func (f *Fake) ListInstances(ctx context.Context) ([]provider.Descriptor, error) {
	f.mu.Lock()
	f.record("list")
	hook := f.OnList
	err := f.ListErr
	out := slices.Clone(f.Instances)
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, &provider.Error{Op: "list", Err: err}
	}
	return out, nil
}

func (f *Fake) CreateInstance(ctx context.Context, id string, settings provider.Settings) (provider.Created, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create")

	if err := f.CreateErr[id]; err != nil {
		return provider.Created{}, &provider.Error{Op: "create", InstanceID: id, Err: err}
	}
	f.Created = append(f.Created, id)
	d := provider.Descriptor{ID: id}
	if !slices.ContainsFunc(f.Instances, func(x provider.Descriptor) bool { return x.ID == id }) {
		f.Instances = append(f.Instances, d)
	}
	return provider.Created{Descriptor: d}, nil
}

func (f *Fake) Connect(ctx context.Context, id string) (provider.ConnectResult, error) {
	f.mu.Lock()
	f.record("connect")
	gate := f.ConnectGate
	err := f.ConnectErr[id]
	res, ok := f.ConnectResults[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return provider.ConnectResult{}, &provider.Error{Op: "connect", InstanceID: id, Err: provider.ErrTimeout}
		}
	}
	if err != nil {
		return provider.ConnectResult{}, &provider.Error{Op: "connect", InstanceID: id, Err: err}
	}
	if !ok {
		return provider.ConnectResult{}, &provider.Error{Op: "connect", InstanceID: id, StatusCode: 404, Err: provider.ErrNotFound}
	}
	return res, nil
}

func (f *Fake) Disconnect(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect")
	if err := f.DisconnectErr[id]; err != nil {
		return &provider.Error{Op: "disconnect", InstanceID: id, Err: err}
	}
	return nil
}

func (f *Fake) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete")
	if err := f.DeleteErr[id]; err != nil {
		return &provider.Error{Op: "delete", InstanceID: id, Err: err}
	}
	f.Instances = slices.DeleteFunc(f.Instances, func(d provider.Descriptor) bool { return d.ID == id })
	return nil
}

func (f *Fake) SendMessage(ctx context.Context, id, recipient, text string) (provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("send")
	if f.SendErr != nil {
		return provider.Receipt{}, &provider.Error{Op: "send", InstanceID: id, Err: f.SendErr}
	}
	f.Sent = append(f.Sent, SentMessage{InstanceID: id, Recipient: recipient, Text: text})
	return provider.Receipt{MessageID: "fake-" + id, Status: "PENDING"}, nil
}

func (f *Fake) ConfigureWebhook(ctx context.Context, id string, hook provider.WebhookSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("webhook")
	if err := f.WebhookErr[id]; err != nil {
		return &provider.Error{Op: "configure_webhook", InstanceID: id, Err: err}
	}
	if f.Webhooks == nil {
		f.Webhooks = make(map[string]provider.WebhookSettings)
	}
	f.Webhooks[id] = hook
	return nil
}
