package evolution

import (
	"strings"
)

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
	Delay  int    `json:"delay,omitempty"`
}

type readMessage struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type markReadRequest struct {
	ReadMessages []readMessage `json:"readMessages"`
}

type presenceOptions struct {
	Delay    int    `json:"delay"`
	Presence string `json:"presence"`
}

type presenceRequest struct {
	Number  string          `json:"number"`
	Options presenceOptions `json:"options"`
}

// EventMessagesUpsert is the only webhook event that carries inbound chat.
const EventMessagesUpsert = "messages.upsert"

// WebhookEvent is the envelope the gateway posts to the webhook.
type WebhookEvent struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     MessageData `json:"data"`
}

// NormalizedEvent folds "MESSAGES_UPSERT" style names into "messages.upsert".
func (e WebhookEvent) NormalizedEvent() string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(e.Event), "_", "."))
}

// MessageKey identifies a message within a chat.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// MessageData is one inbound message.
type MessageData struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName"`
	Message          *MessageContent `json:"message"`
	MessageType      string          `json:"messageType"`
	MessageTimestamp int64           `json:"messageTimestamp"`
}

// MessageContent holds whichever content variant the message carries.
type MessageContent struct {
	Conversation        string               `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
	ImageMessage        *CaptionedMedia      `json:"imageMessage,omitempty"`
	VideoMessage        *CaptionedMedia      `json:"videoMessage,omitempty"`
	AudioMessage        *struct{}            `json:"audioMessage,omitempty"`
	DocumentMessage     *CaptionedMedia      `json:"documentMessage,omitempty"`
	StickerMessage      *struct{}            `json:"stickerMessage,omitempty"`
}

type ExtendedTextMessage struct {
	Text string `json:"text"`
}

type CaptionedMedia struct {
	Caption string `json:"caption,omitempty"`
}

// Text extracts the patient-authored text: plain conversation, extended text
// or an image caption. Empty means the message carries no usable text.
func (d MessageData) Text() string {
	if d.Message == nil {
		return ""
	}
	m := d.Message
	switch {
	case strings.TrimSpace(m.Conversation) != "":
		return strings.TrimSpace(m.Conversation)
	case m.ExtendedTextMessage != nil && strings.TrimSpace(m.ExtendedTextMessage.Text) != "":
		return strings.TrimSpace(m.ExtendedTextMessage.Text)
	case m.ImageMessage != nil && strings.TrimSpace(m.ImageMessage.Caption) != "":
		return strings.TrimSpace(m.ImageMessage.Caption)
	}
	return ""
}
