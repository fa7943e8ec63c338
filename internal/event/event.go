package event

import (
	"context"
	"encoding/json"
	"sync"
)

// Outbound event names on the realtime channel.
const (
	NameMessage      = "message"
	NameTyping       = "typing"
	NameNotification = "notification"
	NamePong         = "pong"
)

// Event is one outbound frame: {"event": Name, "data": Data}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Encode renders the frame sent to clients.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// TypingPayload is the data of a typing event.
type TypingPayload struct {
	ConversationID int64 `json:"conversationId,string"`
	UserID         int64 `json:"userId,string"`
}

// NotificationSignal tells the client its notification state changed.
type NotificationSignal struct {
	Type           string `json:"type"`
	NotificationID int64  `json:"notificationId,string"`
}

// Publisher delivers events to every connection of a user, wherever it lives.
type Publisher interface {
	PublishToUser(ctx context.Context, userID int64, evt Event) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishToUser(context.Context, int64, Event) error { return nil }

// Delivery is one event captured by Recorder.
type Delivery struct {
	UserID int64
	Event  Event
}

// Recorder is a Publisher that keeps everything it receives.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (r *Recorder) PublishToUser(_ context.Context, userID int64, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{UserID: userID, Event: evt})
	return nil
}

// Deliveries returns a snapshot of recorded events.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// For returns events delivered to userID with the given name.
func (r *Recorder) For(userID int64, name string) []Event {
	var out []Event
	for _, d := range r.Deliveries() {
		if d.UserID == userID && d.Event.Name == name {
			out = append(out, d.Event)
		}
	}
	return out
}
