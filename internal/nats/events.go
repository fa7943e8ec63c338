package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
)

const (
	// SubjectUserEventsPrefix + {userId} carries encoded event frames for one user.
	SubjectUserEventsPrefix = "scrapbook.chat.user."
	SubjectUserEventsAll    = SubjectUserEventsPrefix + "*"
)

func BuildUserEventsSubject(userID int64) string {
	return SubjectUserEventsPrefix + strconv.FormatInt(userID, 10)
}

// ParseUserEventsSubject extracts the user id from a user events subject.
func ParseUserEventsSubject(subject string) (int64, error) {
	raw, ok := strings.CutPrefix(subject, SubjectUserEventsPrefix)
	if !ok {
		return 0, fmt.Errorf("unexpected subject %q", subject)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// EventPublisher implements event.Publisher by publishing encoded frames on NATS.
type EventPublisher struct {
	client *Client
	logger *slog.Logger
}

func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{
		client: client,
		logger: slog.Default(),
	}
}

func (p *EventPublisher) PublishToUser(_ context.Context, userID int64, evt event.Event) error {
	payload, err := evt.Encode()
	if err != nil {
		return err
	}
	if err := p.client.Publish(BuildUserEventsSubject(userID), payload); err != nil {
		p.logger.Error("Failed to publish event", "userId", userID, "event", evt.Name, "error", err)
		return err
	}
	p.logger.Debug("Published event", "userId", userID, "event", evt.Name)
	return nil
}

// Deliverer writes an encoded frame to the local connections of a user.
type Deliverer interface {
	Deliver(userID int64, payload []byte) int
}

// EventSubscriber feeds events from every node into the local gateway.
type EventSubscriber struct {
	client *Client
	target Deliverer
	sub    *nats.Subscription
	logger *slog.Logger
}

func NewEventSubscriber(client *Client, target Deliverer) *EventSubscriber {
	return &EventSubscriber{
		client: client,
		target: target,
		logger: slog.Default(),
	}
}

func (s *EventSubscriber) Start() error {
	sub, err := s.client.Subscribe(SubjectUserEventsAll, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("Subscribed to user events", "subject", SubjectUserEventsAll)
	return nil
}

func (s *EventSubscriber) handle(subject string, data []byte) {
	userID, err := ParseUserEventsSubject(subject)
	if err != nil {
		s.logger.Warn("Dropping event", "subject", subject, "error", err)
		return
	}
	s.target.Deliver(userID, data)
}

func (s *EventSubscriber) Stop() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
}
