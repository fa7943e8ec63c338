package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageType is the primary kind of a message. Attachments are independent of it.
type MessageType string

const (
	MessageTypeText     MessageType = "TEXT"
	MessageTypeAudio    MessageType = "AUDIO"
	MessageTypeVideo    MessageType = "VIDEO"
	MessageTypeDocument MessageType = "DOCUMENT"
)

// ParseMessageType accepts any casing; the empty string means TEXT.
func ParseMessageType(s string) (MessageType, bool) {
	switch MessageType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", MessageTypeText:
		return MessageTypeText, true
	case MessageTypeAudio:
		return MessageTypeAudio, true
	case MessageTypeVideo:
		return MessageTypeVideo, true
	case MessageTypeDocument:
		return MessageTypeDocument, true
	default:
		return "", false
	}
}

// Attachment is a media reference carried by a message.
type Attachment struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
}

// Attachments is stored as a JSON array column.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]Attachment(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("attachments: unsupported source %T", src)
	}
	if len(raw) == 0 {
		*a = nil
		return nil
	}
	var out []Attachment
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	if len(out) == 0 {
		out = nil
	}
	*a = out
	return nil
}

// Message is immutable once persisted.
type Message struct {
	ID             int64       `db:"id"`
	ConversationID int64       `db:"conversation_id"`
	SenderID       int64       `db:"sender_id"`
	Content        *string     `db:"content"`
	Type           MessageType `db:"type"`
	Attachments    Attachments `db:"attachments"`
	CreatedAt      time.Time   `db:"created_at"`
}

// HasText reports whether the message carries non-blank text.
func (m *Message) HasText() bool {
	return m.Content != nil && strings.TrimSpace(*m.Content) != ""
}

// Text returns the content or "".
func (m *Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// MessageView is the wire shape of a message.
type MessageView struct {
	ID             int64        `json:"id,string"`
	ConversationID int64        `json:"conversationId,string"`
	Sender         UserView     `json:"sender"`
	Content        *string      `json:"content"`
	Type           MessageType  `json:"type"`
	Attachments    []Attachment `json:"attachments"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// TimestampLayout is RFC 3339 with exactly three fractional digits.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// MarshalJSON renders createdAt in UTC with millisecond precision.
func (v MessageView) MarshalJSON() ([]byte, error) {
	type plain MessageView
	return json.Marshal(struct {
		plain
		CreatedAt string `json:"createdAt"`
	}{
		plain:     plain(v),
		CreatedAt: v.CreatedAt.UTC().Format(TimestampLayout),
	})
}

// NewMessageView joins a message with its sender projection.
func NewMessageView(m *Message, sender UserView) *MessageView {
	var attachments []Attachment
	if len(m.Attachments) > 0 {
		attachments = append(attachments, m.Attachments...)
	}
	return &MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Content:        m.Content,
		Type:           m.Type,
		Attachments:    attachments,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}
