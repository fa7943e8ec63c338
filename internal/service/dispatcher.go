package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/Bruno2K/team-scrapbook-sub000/internal/errors"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/workerpool"
)

const (
	MaxContentLength   = 5000
	MaxAttachments     = 10
	defaultTaskTimeout = 2 * time.Minute
)

// SendRequest is the inbound message payload shared by HTTP and the realtime gateway.
type SendRequest struct {
	ConversationID int64              `json:"conversationId,string"`
	Content        *string            `json:"content"`
	Type           string             `json:"type"`
	Attachments    []model.Attachment `json:"attachments"`
}

// Normalize validates r and converts it into AppendParams for senderID.
func (r *SendRequest) Normalize(senderID int64) (AppendParams, error) {
	if r.ConversationID <= 0 {
		return AppendParams{}, apperrors.ErrInvalidParams.WithMessage("conversationId is required")
	}

	msgType, ok := model.ParseMessageType(r.Type)
	if !ok {
		return AppendParams{}, apperrors.ErrInvalidParams.WithMessage("unknown message type")
	}

	if r.Content != nil && utf8.RuneCountInString(*r.Content) > MaxContentLength {
		return AppendParams{}, apperrors.ErrInvalidParams.WithMessage("content too long")
	}
	if len(r.Attachments) > MaxAttachments {
		return AppendParams{}, apperrors.ErrInvalidParams.WithMessage("too many attachments")
	}

	var attachments model.Attachments
	for _, a := range r.Attachments {
		url := strings.TrimSpace(a.URL)
		if url == "" {
			return AppendParams{}, apperrors.ErrInvalidParams.WithMessage("attachment url is required")
		}
		kind := strings.ToLower(strings.TrimSpace(a.Type))
		if kind == "" {
			kind = "document"
		}
		attachments = append(attachments, model.Attachment{
			URL:      url,
			Type:     kind,
			Filename: strings.TrimSpace(a.Filename),
		})
	}

	content := r.Content
	if content != nil && strings.TrimSpace(*content) == "" {
		content = nil
	}
	if content == nil && len(attachments) == 0 {
		return AppendParams{}, apperrors.ErrInvalidParams.WithMessage("message is empty")
	}

	return AppendParams{
		ConversationID: r.ConversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		Attachments:    attachments,
	}, nil
}

// ReplyJob asks for an automated reply from BotID to HumanID.
type ReplyJob struct {
	ConversationID   int64 `json:"conversationId,string"`
	HumanID          int64 `json:"humanId,string"`
	BotID            int64 `json:"botId,string"`
	TriggerMessageID int64 `json:"triggerMessageId,string"`
}

// ReplyScheduler hands a ReplyJob to whatever runs automated replies.
type ReplyScheduler interface {
	ScheduleReply(ctx context.Context, job ReplyJob) error
}

// NoopReplyScheduler is used when automated replies are disabled.
type NoopReplyScheduler struct{}

func (NoopReplyScheduler) ScheduleReply(context.Context, ReplyJob) error { return nil }

// DispatcherService is the single entry point for inbound messages.
type DispatcherService struct {
	conversations *ConversationService
	notifications *NotificationService
	publisher     event.Publisher
	replies       ReplyScheduler
	pool          *workerpool.Pool
	taskTimeout   time.Duration
	logger        *slog.Logger
}

func NewDispatcherService(
	conversations *ConversationService,
	notifications *NotificationService,
	publisher event.Publisher,
	replies ReplyScheduler,
	pool *workerpool.Pool,
	taskTimeout time.Duration,
) *DispatcherService {
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}
	if replies == nil {
		replies = NoopReplyScheduler{}
	}
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}
	return &DispatcherService{
		conversations: conversations,
		notifications: notifications,
		publisher:     publisher,
		replies:       replies,
		pool:          pool,
		taskTimeout:   taskTimeout,
		logger:        slog.Default(),
	}
}

// Send persists the message and returns it. Fan-out to the recipient,
// the notification and the automated reply run detached afterwards.
func (s *DispatcherService) Send(ctx context.Context, senderID int64, req *SendRequest) (*model.MessageView, error) {
	params, err := req.Normalize(senderID)
	if err != nil {
		return nil, err
	}

	msg, conv, err := s.conversations.Append(ctx, params)
	if err != nil {
		return nil, err
	}

	view, err := s.conversations.View(ctx, msg)
	if err != nil {
		return nil, err
	}

	s.fanOut(view, conv.Other(senderID))
	return view, nil
}

func (s *DispatcherService) fanOut(view *model.MessageView, recipientID int64) {
	job := ReplyJob{
		ConversationID:   view.ConversationID,
		HumanID:          view.Sender.ID,
		BotID:            recipientID,
		TriggerMessageID: view.ID,
	}

	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.taskTimeout)
		defer cancel()

		if err := s.publisher.PublishToUser(ctx, recipientID, event.Event{Name: event.NameMessage, Data: view}); err != nil {
			s.logger.Warn("Failed to emit message",
				"messageId", view.ID,
				"recipientId", recipientID,
				"error", err)
		}

		if s.notifications != nil {
			payload := model.ChatMessagePayload{ConversationID: view.ConversationID, MessageID: view.ID}
			if _, err := s.notifications.Record(ctx, recipientID, model.NotificationChatMessage, payload); err != nil {
				s.logger.Warn("Failed to record notification",
					"messageId", view.ID,
					"recipientId", recipientID,
					"error", err)
			}
		}

		if err := s.replies.ScheduleReply(ctx, job); err != nil {
			s.logger.Warn("Failed to schedule reply",
				"conversationId", job.ConversationID,
				"botId", job.BotID,
				"error", err)
		}
	}

	if !s.pool.TrySubmit(task) {
		s.logger.Warn("Dispatch queue full, fan-out dropped",
			"messageId", view.ID,
			"recipientId", recipientID)
	}
}
