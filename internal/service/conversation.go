package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/Bruno2K/team-scrapbook-sub000/internal/errors"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/snowflake"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// OnlineChecker answers presence queries for views.
type OnlineChecker interface {
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

// AppendParams is a validated message ready to be stored.
type AppendParams struct {
	ConversationID int64
	SenderID       int64
	Content        *string
	Type           model.MessageType
	Attachments    model.Attachments
}

// ConversationService owns conversations and their messages.
type ConversationService struct {
	repos    *repository.Repositories
	gate     AccessGate
	presence OnlineChecker
	ids      *snowflake.Node
	now      func() time.Time
	logger   *slog.Logger
}

func NewConversationService(repos *repository.Repositories, gate AccessGate, presence OnlineChecker, ids *snowflake.Node) *ConversationService {
	return &ConversationService{
		repos:    repos,
		gate:     gate,
		presence: presence,
		ids:      ids,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		logger:   slog.Default(),
	}
}

// GetOrCreate returns the conversation between userID and otherID, creating it on first use.
func (s *ConversationService) GetOrCreate(ctx context.Context, userID, otherID int64) (*model.ConversationSummary, error) {
	if otherID <= 0 || otherID == userID {
		return nil, apperrors.ErrInvalidParams.WithMessage("invalid otherUserId")
	}

	other, err := s.repos.Users.GetByID(ctx, otherID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	if err := s.checkAccess(ctx, userID, otherID); err != nil {
		return nil, err
	}

	userA, userB := model.CanonicalPair(userID, otherID)
	conv, err := s.repos.Conversations.FindByPair(ctx, userA, userB)
	if errors.Is(err, repository.ErrNotFound) {
		now := s.now()
		conv, err = s.repos.Conversations.CreateOrGet(ctx, &model.Conversation{
			ID:             s.ids.Next(),
			UserA:          userA,
			UserB:          userB,
			LastActivityAt: now,
			CreatedAt:      now,
		})
		if err == nil {
			s.logger.Info("Conversation opened", "conversationId", conv.ID, "userA", userA, "userB", userB)
		}
	}
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	latest, err := s.repos.Messages.Latest(ctx, []int64{conv.ID})
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	users := map[int64]*model.User{otherID: other}
	return s.summary(ctx, conv, userID, users, latest[conv.ID])
}

// List returns every conversation of userID, most recent activity first.
func (s *ConversationService) List(ctx context.Context, userID int64) ([]*model.ConversationSummary, error) {
	convs, err := s.repos.Conversations.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	if len(convs) == 0 {
		return []*model.ConversationSummary{}, nil
	}

	convIDs := make([]int64, 0, len(convs))
	userIDs := make([]int64, 0, len(convs)+1)
	userIDs = append(userIDs, userID)
	for _, c := range convs {
		convIDs = append(convIDs, c.ID)
		userIDs = append(userIDs, c.Other(userID))
	}

	latest, err := s.repos.Messages.Latest(ctx, convIDs)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	users, err := s.repos.Users.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	out := make([]*model.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		sum, err := s.summary(ctx, c, userID, users, latest[c.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// ListMessages returns one page of history, oldest first. beforeID 0 starts from the newest message.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID, requesterID int64, limit int, beforeID int64) (*model.MessagePage, error) {
	if _, err := s.Participant(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	var cursor *model.Message
	if beforeID != 0 {
		m, err := s.repos.Messages.GetByID(ctx, beforeID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrDBError.Wrap(err)
		}
		if m == nil || m.ConversationID != conversationID {
			return nil, apperrors.ErrInvalidParams.WithMessage("unknown cursor")
		}
		cursor = m
	}

	rows, err := s.repos.Messages.ListBefore(ctx, conversationID, cursor, limit+1)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	// newest first from the store, oldest first on the wire
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	views, err := s.Views(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &model.MessagePage{Messages: views, HasMore: hasMore}, nil
}

// Append stores a message after re-checking participation and access.
func (s *ConversationService) Append(ctx context.Context, p AppendParams) (*model.Message, *model.Conversation, error) {
	conv, err := s.Participant(ctx, p.ConversationID, p.SenderID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkAccess(ctx, p.SenderID, conv.Other(p.SenderID)); err != nil {
		return nil, nil, err
	}

	msgType := p.Type
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	msg := &model.Message{
		ID:             s.ids.Next(),
		ConversationID: conv.ID,
		SenderID:       p.SenderID,
		Content:        p.Content,
		Type:           msgType,
		Attachments:    p.Attachments,
		CreatedAt:      s.now(),
	}
	if err := s.repos.Messages.Append(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.ErrConversationNotFound
		}
		return nil, nil, apperrors.ErrDBError.Wrap(err)
	}
	if msg.CreatedAt.After(conv.LastActivityAt) {
		conv.LastActivityAt = msg.CreatedAt
	}

	s.logger.Debug("Message appended",
		"messageId", msg.ID,
		"conversationId", conv.ID,
		"senderId", msg.SenderID,
		"type", msg.Type)
	return msg, conv, nil
}

// Participant loads the conversation and checks that userID belongs to it.
func (s *ConversationService) Participant(ctx context.Context, conversationID, userID int64) (*model.Conversation, error) {
	conv, err := s.repos.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}
	return conv, nil
}

// RecentMessages returns up to n of the newest messages, oldest first.
func (s *ConversationService) RecentMessages(ctx context.Context, conversationID int64, n int) ([]*model.Message, error) {
	rows, err := s.repos.Messages.ListBefore(ctx, conversationID, nil, n)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// User loads one user.
func (s *ConversationService) User(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return u, nil
}

// View renders one message with its sender.
func (s *ConversationService) View(ctx context.Context, msg *model.Message) (*model.MessageView, error) {
	views, err := s.Views(ctx, []*model.Message{msg})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// Views renders messages, loading each distinct sender once.
func (s *ConversationService) Views(ctx context.Context, msgs []*model.Message) ([]*model.MessageView, error) {
	out := make([]*model.MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, 2)
	seen := make(map[int64]struct{}, 2)
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}
	users, err := s.repos.Users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	senders := make(map[int64]model.UserView, len(ids))
	for _, id := range ids {
		senders[id] = s.userView(ctx, id, users[id])
	}
	for _, m := range msgs {
		out = append(out, model.NewMessageView(m, senders[m.SenderID]))
	}
	return out, nil
}

func (s *ConversationService) summary(ctx context.Context, conv *model.Conversation, userID int64, users map[int64]*model.User, last *model.Message) (*model.ConversationSummary, error) {
	otherID := conv.Other(userID)
	sum := &model.ConversationSummary{
		ID:             conv.ID,
		OtherUser:      s.userView(ctx, otherID, users[otherID]),
		LastActivityAt: conv.LastActivityAt.UTC(),
	}
	if last != nil {
		preview, err := s.View(ctx, last)
		if err != nil {
			return nil, err
		}
		sum.LastMessagePreview = preview
	}
	return sum, nil
}

func (s *ConversationService) userView(ctx context.Context, id int64, u *model.User) model.UserView {
	if u == nil {
		return model.UserView{ID: id}
	}
	return u.View(s.isOnline(ctx, id))
}

func (s *ConversationService) isOnline(ctx context.Context, userID int64) bool {
	if s.presence == nil {
		return false
	}
	online, err := s.presence.IsOnline(ctx, userID)
	if err != nil {
		s.logger.Warn("Presence lookup failed", "userId", userID, "error", err)
		return false
	}
	return online
}

func (s *ConversationService) checkAccess(ctx context.Context, userID, otherID int64) error {
	ok, err := s.gate.CanMessage(ctx, userID, otherID)
	if err != nil {
		return apperrors.ErrDBError.Wrap(err)
	}
	if !ok {
		return apperrors.ErrAccessDenied
	}
	return nil
}
