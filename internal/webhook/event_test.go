package webhook

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		event string
		want  EventType
	}{
		{"messages.upsert", TypeMessageUpsert},
		{"MESSAGES_UPSERT", TypeMessageUpsert},
		{"message_upsert", TypeMessageUpsert},
		{"messages-upsert", TypeMessageUpsert},
		{"messages.update", TypeMessageStatusUpdate},
		{"message_status_update", TypeMessageStatusUpdate},
		{"qrcode.updated", TypeQRCodeUpdated},
		{"QRCODE_UPDATED", TypeQRCodeUpdated},
		{"connection.update", TypeConnectionUpdate},
		{"presence.update", TypeUnknown},
		{"", TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			body := `{"event":"` + tt.event + `","instance":"vendas-01","data":{"state":"open"}}`
			ev, err := ParseEvent([]byte(body), now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, tt.event, ev.RawType)
			assert.Equal(t, "vendas-01", ev.InstanceID)
			assert.Equal(t, now, ev.ReceivedAt)
			assert.NotEmpty(t, ev.ID)
			assert.JSONEq(t, `{"state":"open"}`, string(ev.Payload))
		})
	}
}

func TestParseEventErrors(t *testing.T) {
	_, err := ParseEvent([]byte(`{"event":`), time.Now())
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseEvent([]byte(`{"event":"connection.update","data":{}}`), time.Now())
	assert.ErrorIs(t, err, ErrMissingInstance)

	ev, err := ParseEvent([]byte(`{"event":"connection.update","instanceId":"x"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "x", ev.InstanceID)
}

func TestQueuedRoundTrip(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event":"MESSAGES_UPSERT","instance":"a","data":{"key":{"id":"1"}}}`), time.Now())
	require.NoError(t, err)

	q := ev.Queued()
	back := FromQueued(&q)
	assert.Equal(t, ev.ID, back.ID)
	assert.Equal(t, TypeMessageUpsert, back.Type)
	assert.Equal(t, ev.InstanceID, back.InstanceID)
}

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Message
	}{
		{
			name: "conversa",
			data: `{"key":{"id":"M1","remoteJid":"5511999990000@s.whatsapp.net","fromMe":false},"pushName":"Ana","message":{"conversation":"oi"}}`,
			want: Message{ID: "M1", From: "5511999990000", RemoteJID: "5511999990000@s.whatsapp.net", IsFromUser: true, Text: "oi", MediaType: "text", PushName: "Ana"},
		},
		{
			name: "texto estendido enviado pela instância",
			data: `{"key":{"id":"M2","remoteJid":"5511999990000@s.whatsapp.net","fromMe":true},"message":{"extendedTextMessage":{"text":"olá"}}}`,
			want: Message{ID: "M2", From: "5511999990000", RemoteJID: "5511999990000@s.whatsapp.net", IsFromUser: false, Text: "olá", MediaType: "text"},
		},
		{
			name: "imagem em grupo",
			data: `{"key":{"id":"M3","remoteJid":"120363000000@g.us","participant":"5511988887777@s.whatsapp.net"},"message":{"imageMessage":{"caption":"foto"}}}`,
			want: Message{ID: "M3", From: "5511988887777", RemoteJID: "120363000000@g.us", IsFromUser: true, IsGroup: true, Text: "foto", MediaType: "image"},
		},
		{
			name: "lista",
			data: `[{"key":{"id":"M4","remoteJid":"5511999990000@s.whatsapp.net"},"message":{"audioMessage":{}}}]`,
			want: Message{ID: "M4", From: "5511999990000", RemoteJID: "5511999990000@s.whatsapp.net", IsFromUser: true, MediaType: "audio"},
		},
		{
			name: "envelope messages",
			data: `{"messages":[{"key":{"id":"M5","remoteJid":"5511999990000@s.whatsapp.net"},"message":{"reactionMessage":{}}}]}`,
			want: Message{ID: "M5", From: "5511999990000", RemoteJID: "5511999990000@s.whatsapp.net", IsFromUser: true, MediaType: "unknown"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractMessage(json.RawMessage(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := extractMessage(nil)
	assert.ErrorIs(t, err, ErrNoMessage)
	_, err = extractMessage(json.RawMessage(`[]`))
	assert.ErrorIs(t, err, ErrNoMessage)
	_, err = extractMessage(json.RawMessage(`{"key":`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestExtractQRCodeAndStatus(t *testing.T) {
	qr, err := extractQRCode(json.RawMessage(`{"qrcode":{"code":"2@x","base64":"data:image/png;base64,AA=="}}`))
	require.NoError(t, err)
	assert.Equal(t, "2@x", qr.Code)
	assert.Equal(t, "data:image/png;base64,AA==", qr.Base64)

	qr, err = extractQRCode(json.RawMessage(`{"code":"2@y","pairingCode":"ABCD-1234"}`))
	require.NoError(t, err)
	assert.Equal(t, "2@y", qr.Code)
	assert.Equal(t, "ABCD-1234", qr.PairingCode)

	s, err := extractStatus(json.RawMessage(`{"keyId":"M1","status":"READ"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusUpdate{MessageID: "M1", Status: "READ"}, s)

	s, err = extractStatus(json.RawMessage(`{"key":{"id":"M2"},"update":{"status":3}}`))
	require.NoError(t, err)
	assert.Equal(t, StatusUpdate{MessageID: "M2", Status: "3"}, s)
}

func TestSignature(t *testing.T) {
	body := []byte(`{"event":"connection.update"}`)
	sig := Sign(body, "segredo")
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.True(t, VerifySignature(body, sig, "segredo"))
	assert.False(t, VerifySignature(body, sig, "outro"))
	assert.False(t, VerifySignature(append(body, ' '), sig, "segredo"))
}
