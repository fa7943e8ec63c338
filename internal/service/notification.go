package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	apperrors "github.com/Bruno2K/team-scrapbook-sub000/internal/errors"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/snowflake"
)

// NotificationService records inbox rows and signals the owner over the realtime channel.
type NotificationService struct {
	repo      repository.NotificationRepository
	publisher event.Publisher
	ids       *snowflake.Node
	now       func() time.Time
	logger    *slog.Logger
}

func NewNotificationService(repo repository.NotificationRepository, publisher event.Publisher, ids *snowflake.Node) *NotificationService {
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}
	return &NotificationService{
		repo:      repo,
		publisher: publisher,
		ids:       ids,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		logger:    slog.Default(),
	}
}

// Record persists a notification for userID and pushes a signal. A failed push is logged only.
func (s *NotificationService) Record(ctx context.Context, userID int64, typ model.NotificationType, payload any) (*model.Notification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.ErrInvalidParams.Wrap(err)
	}

	n := &model.Notification{
		ID:        s.ids.Next(),
		UserID:    userID,
		Type:      typ,
		Payload:   raw,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	signal := event.Event{
		Name: event.NameNotification,
		Data: event.NotificationSignal{Type: string(typ), NotificationID: n.ID},
	}
	if err := s.publisher.PublishToUser(ctx, userID, signal); err != nil {
		s.logger.Warn("Failed to push notification",
			"userId", userID,
			"notificationId", n.ID,
			"error", err)
	}
	return n, nil
}
