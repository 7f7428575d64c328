package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/open-apime/fleet/internal/provider"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, APIKey: "chave", Logger: zaptest.NewLogger(t)})
}

func TestListInstances(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instance/fetchInstances", r.URL.Path)
		assert.Equal(t, "chave", r.Header.Get("apikey"))
		_, _ = w.Write([]byte(`[
			{"name":"vendas-01","connectionStatus":"open","ownerJid":"5511999990000@s.whatsapp.net","profileName":"Loja","createdAt":"2024-03-01T10:00:00Z","_count":{"Message":42,"Contact":7,"Chat":3}},
			{"name":"","connectionStatus":"close"},
			{"instanceName":"vendas-02","state":"CLOSE"}
		]`))
	})

	got, err := c.ListInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "vendas-01", got[0].ID)
	assert.Equal(t, provider.StateOpen, got[0].State)
	assert.Equal(t, int64(42), got[0].MessagesCount)
	assert.Equal(t, int64(7), got[0].ContactsCount)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got[0].CreatedAt)

	assert.Equal(t, "vendas-02", got[1].ID)
	assert.Equal(t, provider.StateClose, got[1].State)
}

func TestCreateInstance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nova", body["instanceName"])
		assert.Equal(t, "WHATSAPP-BAILEYS", body["integration"])
		assert.Equal(t, true, body["qrcode"])
		_, _ = w.Write([]byte(`{"instance":{"instanceName":"nova","status":"created"},"qrcode":{"code":"2@abc","base64":"data:image/png;base64,AAA"}}`))
	})

	created, err := c.CreateInstance(context.Background(), "nova", provider.Settings{})
	require.NoError(t, err)
	assert.Equal(t, "nova", created.Descriptor.ID)
	require.NotNil(t, created.Pairing)
	assert.Equal(t, "2@abc", created.Pairing.Code)
}

func TestConnect(t *testing.T) {
	t.Run("payload", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/instance/connect/vendas-01", r.URL.Path)
			_, _ = w.Write([]byte(`{"code":"2@xyz","pairingCode":"WZYEH1YY","count":1}`))
		})
		res, err := c.Connect(context.Background(), "vendas-01")
		require.NoError(t, err)
		assert.Equal(t, "2@xyz", res.Pairing.Code)
		assert.Equal(t, "WZYEH1YY", res.Pairing.PairingCode)
		assert.False(t, res.Pairing.Empty())
	})

	t.Run("ja conectada", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"instance":{"instanceName":"vendas-01","state":"open"}}`))
		})
		res, err := c.Connect(context.Background(), "vendas-01")
		require.NoError(t, err)
		assert.True(t, res.Pairing.Empty())
		assert.Equal(t, provider.StateOpen, res.State)
	})
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/sendText/vendas-01", r.URL.Path)
		var body sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "5511999990000", body.Number)
		assert.Equal(t, "olá", body.Text)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"key":{"id":"BAE5"},"status":"PENDING"}`))
	})

	receipt, err := c.SendMessage(context.Background(), "vendas-01", "5511999990000", "olá")
	require.NoError(t, err)
	assert.Equal(t, "BAE5", receipt.MessageID)
	assert.Equal(t, "PENDING", receipt.Status)
}

func TestConfigureWebhook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhook/set/vendas-01", r.URL.Path)
		var body webhookRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Webhook.Enabled)
		assert.Equal(t, "http://fleet/webhook", body.Webhook.URL)
		assert.Equal(t, []string{"CONNECTION_UPDATE"}, body.Webhook.Events)
		_, _ = w.Write([]byte(`{}`))
	})

	err := c.ConfigureWebhook(context.Background(), "vendas-01", provider.WebhookSettings{
		URL:    "http://fleet/webhook",
		Events: []string{"CONNECTION_UPDATE"},
	})
	require.NoError(t, err)
}

func TestErrorMapping(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		err := c.Delete(context.Background(), "fantasma")
		require.Error(t, err)
		assert.ErrorIs(t, err, provider.ErrNotFound)

		var perr *provider.Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "delete", perr.Op)
		assert.Equal(t, "fantasma", perr.InstanceID)
		assert.Equal(t, http.StatusNotFound, perr.StatusCode)
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})
		err := c.Disconnect(context.Background(), "vendas-01")
		assert.ErrorIs(t, err, provider.ErrRemoteUnavailable)
		assert.Equal(t, "remote_unavailable", provider.Kind(err))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })

		c := New(Options{BaseURL: srv.URL, Timeouts: Timeouts{List: 50 * time.Millisecond}})
		_, err := c.ListInstances(context.Background())
		assert.ErrorIs(t, err, provider.ErrTimeout)
	})

	t.Run("transport", func(t *testing.T) {
		c := New(Options{BaseURL: "http://127.0.0.1:1"})
		_, err := c.ListInstances(context.Background())
		assert.ErrorIs(t, err, provider.ErrRemoteUnavailable)
	})
}
