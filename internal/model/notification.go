package model

import (
	"encoding/json"
	"time"
)

type NotificationType string

const NotificationChatMessage NotificationType = "CHAT_MESSAGE"

// Notification is a lightweight inbox row. Its payload is opaque to the relay.
type Notification struct {
	ID        int64            `json:"id,string" db:"id"`
	UserID    int64            `json:"userId,string" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Payload   json.RawMessage  `json:"payload" db:"payload"`
	Read      bool             `json:"read" db:"read"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

// ChatMessagePayload is the payload of a CHAT_MESSAGE notification.
type ChatMessagePayload struct {
	ConversationID int64 `json:"conversationId,string"`
	MessageID      int64 `json:"messageId,string"`
}
