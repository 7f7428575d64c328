package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/open-apime/fleet/internal/provider"
	"github.com/open-apime/fleet/internal/registry"
)

// Message é a mensagem normalizada de um message_upsert.
type Message struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	RemoteJID  string `json:"remoteJid"`
	IsFromUser bool   `json:"isFromUser"`
	IsGroup    bool   `json:"isGroup"`
	Text       string `json:"text,omitempty"`
	MediaType  string `json:"mediaType"`
	PushName   string `json:"pushName,omitempty"`

	// status@broadcast, listas de transmissão e canais
	IsBroadcast bool `json:"isBroadcast,omitempty"`
}

type QRCode struct {
	Code        string `json:"code,omitempty"`
	Base64      string `json:"base64,omitempty"`
	PairingCode string `json:"pairingCode,omitempty"`
}

type ConnectionUpdate struct {
	State        provider.State `json:"state"`
	StatusReason int            `json:"statusReason,omitempty"`
}

type StatusUpdate struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type rawMessage struct {
	Key struct {
		ID          string `json:"id"`
		RemoteJID   string `json:"remoteJid"`
		FromMe      bool   `json:"fromMe"`
		Participant string `json:"participant"`
	} `json:"key"`
	PushName    string         `json:"pushName"`
	MessageType string         `json:"messageType"`
	Message     messageContent `json:"message"`
}

type captioned struct {
	Caption string `json:"caption"`
}

type messageContent struct {
	Conversation string `json:"conversation"`
	ExtendedText *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	Image    *captioned `json:"imageMessage"`
	Video    *captioned `json:"videoMessage"`
	Document *captioned `json:"documentMessage"`
	Audio    *struct{}  `json:"audioMessage"`
	Sticker  *struct{}  `json:"stickerMessage"`
}

// extractMessage aceita data como objeto, lista ou {messages: [...]}; usa a
// primeira mensagem.
func extractMessage(data json.RawMessage) (Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Message{}, ErrNoMessage
	}

	var raw rawMessage
	switch data[0] {
	case '[':
		var list []rawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if len(list) == 0 {
			return Message{}, ErrNoMessage
		}
		raw = list[0]
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if raw.Key.ID == "" {
			var wrapped struct {
				Messages []rawMessage `json:"messages"`
			}
			if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Messages) > 0 {
				raw = wrapped.Messages[0]
			}
		}
	}
	if raw.Key.ID == "" && raw.Key.RemoteJID == "" {
		return Message{}, ErrNoMessage
	}

	msg := Message{
		ID:         raw.Key.ID,
		RemoteJID:  raw.Key.RemoteJID,
		IsFromUser: !raw.Key.FromMe,
		IsGroup:    strings.HasSuffix(raw.Key.RemoteJID, "@g.us"),
		PushName:   raw.PushName,
	}
	msg.IsBroadcast = strings.HasSuffix(msg.RemoteJID, "@broadcast") || strings.HasSuffix(msg.RemoteJID, "@newsletter")
	if msg.IsGroup && raw.Key.Participant != "" {
		msg.From = registry.NormalizePhone(raw.Key.Participant)
	} else {
		msg.From = registry.NormalizePhone(raw.Key.RemoteJID)
	}
	msg.Text, msg.MediaType = raw.Message.content()
	return msg, nil
}

func (c messageContent) content() (text, mediaType string) {
	switch {
	case c.Conversation != "":
		return c.Conversation, "text"
	case c.ExtendedText != nil:
		return c.ExtendedText.Text, "text"
	case c.Image != nil:
		return c.Image.Caption, "image"
	case c.Video != nil:
		return c.Video.Caption, "video"
	case c.Document != nil:
		return c.Document.Caption, "document"
	case c.Audio != nil:
		return "", "audio"
	case c.Sticker != nil:
		return "", "sticker"
	default:
		return "", "unknown"
	}
}

func extractQRCode(data json.RawMessage) (QRCode, error) {
	var body struct {
		Nested *QRCode `json:"qrcode"`
		QRCode
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return QRCode{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if body.Nested != nil {
		return *body.Nested, nil
	}
	return body.QRCode, nil
}

func extractConnection(data json.RawMessage) (ConnectionUpdate, error) {
	var upd ConnectionUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		return ConnectionUpdate{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	upd.State = provider.State(strings.ToLower(string(upd.State)))
	return upd, nil
}

func extractStatus(data json.RawMessage) (StatusUpdate, error) {
	var body struct {
		KeyID  string `json:"keyId"`
		Status string `json:"status"`
		Key    struct {
			ID string `json:"id"`
		} `json:"key"`
		Update struct {
			Status any `json:"status"`
		} `json:"update"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return StatusUpdate{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	s := StatusUpdate{MessageID: body.KeyID, Status: body.Status}
	if s.MessageID == "" {
		s.MessageID = body.Key.ID
	}
	if s.Status == "" && body.Update.Status != nil {
		s.Status = fmt.Sprint(body.Update.Status)
	}
	return s, nil
}
