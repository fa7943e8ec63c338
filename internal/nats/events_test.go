package nats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/config"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
)

type captured struct {
	mu    sync.Mutex
	users []int64
	data  [][]byte
}

func (c *captured) Deliver(userID int64, payload []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
	c.data = append(c.data, payload)
	return 1
}

func (c *captured) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}

func TestUserEventsSubject(t *testing.T) {
	subject := BuildUserEventsSubject(1234567890123)
	if subject != "scrapbook.chat.user.1234567890123" {
		t.Errorf("unexpected subject %s", subject)
	}

	id, err := ParseUserEventsSubject(subject)
	if err != nil || id != 1234567890123 {
		t.Errorf("ParseUserEventsSubject = %d, %v", id, err)
	}

	if _, err := ParseUserEventsSubject("other.subject.1"); err == nil {
		t.Error("expected error for foreign subject")
	}
	if _, err := ParseUserEventsSubject(SubjectUserEventsPrefix + "abc"); err == nil {
		t.Error("expected error for non numeric id")
	}
}

func TestEventSubscriber_Handle(t *testing.T) {
	target := &captured{}
	s := NewEventSubscriber(nil, target)

	s.handle(BuildUserEventsSubject(5), []byte(`{"event":"typing"}`))
	s.handle("garbage", []byte(`{}`))

	if target.len() != 1 || target.users[0] != 5 {
		t.Fatalf("unexpected deliveries: %v", target.users)
	}
}

func TestEventPublisher_RoundTrip(t *testing.T) {
	client, err := NewClient(config.NATSConfig{URL: nats.DefaultURL, MaxReconnects: 0, ReconnectWait: time.Second}, "chat-test", nil)
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	defer client.Close()

	target := &captured{}
	sub := NewEventSubscriber(client, target)
	if err := sub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sub.Stop()
	if err := client.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	pub := NewEventPublisher(client)
	evt := event.Event{Name: event.NameTyping, Data: event.TypingPayload{ConversationID: 1, UserID: 2}}
	if err := pub.PublishToUser(context.Background(), 3, evt); err != nil {
		t.Fatalf("PublishToUser failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for target.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if target.len() != 1 {
		t.Fatalf("expected one delivery, got %d", target.len())
	}
	if target.users[0] != 3 {
		t.Errorf("delivered to %d, want 3", target.users[0])
	}
	want := `{"event":"typing","data":{"conversationId":"1","userId":"2"}}`
	if string(target.data[0]) != want {
		t.Errorf("payload %s, want %s", target.data[0], want)
	}
}
