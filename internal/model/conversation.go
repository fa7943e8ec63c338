package model

import "time"

// Conversation is the single thread between two users.
// UserA < UserB always holds (canonical pair).
type Conversation struct {
	ID             int64     `json:"id,string" db:"id"`
	UserA          int64     `json:"userA,string" db:"user_a"`
	UserB          int64     `json:"userB,string" db:"user_b"`
	LastActivityAt time.Time `json:"lastActivityAt" db:"last_activity_at"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// CanonicalPair orders two user ids so that the smaller comes first.
func CanonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether userID is one of the two users.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.UserA == userID || c.UserB == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID int64) int64 {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID                 int64        `json:"id,string"`
	OtherUser          UserView     `json:"otherUser"`
	LastMessagePreview *MessageView `json:"lastMessagePreview"`
	LastActivityAt     time.Time    `json:"lastActivityAt"`
}

// MessagePage is one page of history, oldest first.
type MessagePage struct {
	Messages []*MessageView `json:"messages"`
	HasMore  bool           `json:"hasMore"`
}
