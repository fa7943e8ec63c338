// Package aireply generates in-character replies for automated accounts.
package aireply

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/service"
)

const (
	DefaultHistoryLimit = 20
	tracerName          = "github.com/Bruno2K/team-scrapbook-sub000/internal/aireply"
)

var ErrDisabled = errors.New("automated replies are not configured")

// Store is what the engine needs from the conversation service.
type Store interface {
	User(ctx context.Context, userID int64) (*model.User, error)
	Participant(ctx context.Context, conversationID, userID int64) (*model.Conversation, error)
	RecentMessages(ctx context.Context, conversationID int64, n int) ([]*model.Message, error)
	Append(ctx context.Context, p service.AppendParams) (*model.Message, *model.Conversation, error)
	View(ctx context.Context, msg *model.Message) (*model.MessageView, error)
}

type Options struct {
	Store Store
	// Provider is nil when no credentials are configured.
	Provider     Provider
	Publisher    event.Publisher
	Catalog      *Catalog
	Policy       RetryPolicy
	HistoryLimit int
	Logger       *slog.Logger
}

type Engine struct {
	store        Store
	provider     Provider
	publisher    event.Publisher
	catalog      *Catalog
	policy       RetryPolicy
	historyLimit int
	tracer       trace.Tracer
	logger       *slog.Logger
}

func NewEngine(opts Options) *Engine {
	limit := opts.HistoryLimit
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:        opts.Store,
		provider:     opts.Provider,
		publisher:    publisher,
		catalog:      opts.Catalog,
		policy:       opts.Policy,
		historyLimit: limit,
		tracer:       otel.Tracer(tracerName),
		logger:       logger,
	}
}

// Enabled reports whether a provider is configured.
func (e *Engine) Enabled() bool {
	return e.provider != nil
}

// Reply answers job.TriggerMessageID on behalf of job.BotID when that user is
// automated. A nil view with a nil error means no reply was due.
func (e *Engine) Reply(ctx context.Context, job service.ReplyJob) (*model.MessageView, error) {
	if !e.Enabled() {
		return nil, nil
	}

	ctx, span := e.tracer.Start(ctx, "aireply.reply", trace.WithAttributes(
		attribute.Int64("conversation.id", job.ConversationID),
		attribute.Int64("bot.id", job.BotID),
	))
	defer span.End()

	view, err := e.reply(ctx, span, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return view, err
}

func (e *Engine) reply(ctx context.Context, span trace.Span, job service.ReplyJob) (*model.MessageView, error) {
	bot, err := e.store.User(ctx, job.BotID)
	if err != nil {
		return nil, err
	}
	if !bot.IsAutomated {
		span.SetAttributes(attribute.String("aireply.skipped", "not_automated"))
		return nil, nil
	}

	conv, err := e.store.Participant(ctx, job.ConversationID, bot.ID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(job.HumanID) {
		return nil, nil
	}

	history, err := e.store.RecentMessages(ctx, conv.ID, e.historyLimit)
	if err != nil {
		return nil, err
	}
	latest := latestFrom(history, job.HumanID)
	if latest == nil || (!latest.HasText() && len(latest.Attachments) == 0) {
		span.SetAttributes(attribute.String("aireply.skipped", "empty_turn"))
		return nil, nil
	}

	human, err := e.store.User(ctx, job.HumanID)
	if err != nil {
		return nil, err
	}

	persona := PersonaFor(bot.Archetype)
	system := systemPrompt(persona, bot)
	prompt := ReplyPrompt(bot, human, HistoryTurns(history, bot.ID), latest)

	raw, attempts, err := e.policy.Do(ctx, func(ctx context.Context) (string, error) {
		return e.provider.Generate(ctx, system, prompt)
	})
	span.SetAttributes(attribute.Int("aireply.attempts", attempts))
	if err != nil {
		e.logger.Warn("Automated reply failed",
			"conversationId", conv.ID,
			"botId", bot.ID,
			"attempts", attempts,
			"rateLimited", IsRateLimited(err),
			"error", err)
		return nil, err
	}

	params, ok := e.compose(bot, conv.ID, ParseReply(raw))
	if !ok {
		span.SetAttributes(attribute.String("aireply.skipped", "empty_reply"))
		return nil, nil
	}

	msg, _, err := e.store.Append(ctx, params)
	if err != nil {
		return nil, err
	}
	view, err := e.store.View(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := e.publisher.PublishToUser(ctx, job.HumanID, event.Event{Name: event.NameMessage, Data: view}); err != nil {
		e.logger.Warn("Failed to emit automated reply", "messageId", msg.ID, "error", err)
	}

	e.logger.Info("Automated reply sent",
		"conversationId", conv.ID,
		"botId", bot.ID,
		"messageId", msg.ID,
		"type", msg.Type,
		"attempts", attempts)
	return view, nil
}

// compose maps a provider reply to a message. Media replies pick a catalog
// entry and keep the text as caption.
func (e *Engine) compose(bot *model.User, conversationID int64, r Reply) (service.AppendParams, bool) {
	params := service.AppendParams{
		ConversationID: conversationID,
		SenderID:       bot.ID,
		Type:           model.MessageTypeText,
	}
	if r.Content != "" {
		content := r.Content
		params.Content = &content
	}

	switch r.ResponseType {
	case ResponseAudio, ResponseImage, ResponseGIF:
		if entry, ok := e.catalog.Select(bot.Archetype, r.ResponseType, r.AttachmentHint); ok {
			params.Attachments = model.Attachments{{URL: entry.URL, Type: entry.Type, Filename: entry.Filename}}
			if r.ResponseType == ResponseAudio {
				params.Type = model.MessageTypeAudio
			}
		}
	}

	return params, params.Content != nil || len(params.Attachments) > 0
}

// GenerateText writes a one-line post in the voice of userID.
func (e *Engine) GenerateText(ctx context.Context, userID int64, topic string) (string, error) {
	if !e.Enabled() {
		return "", ErrDisabled
	}

	ctx, span := e.tracer.Start(ctx, "aireply.generate", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	bot, err := e.store.User(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	system := systemPrompt(PersonaFor(bot.Archetype), bot)
	prompt := PostPrompt(bot, topic)
	raw, attempts, err := e.policy.Do(ctx, func(ctx context.Context) (string, error) {
		return e.provider.Generate(ctx, system, prompt)
	})
	span.SetAttributes(attribute.Int("aireply.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	line := firstLine(raw)
	if line == "" {
		return "", ErrEmptyResponse
	}
	return line, nil
}

func latestFrom(history []*model.Message, senderID int64) *model.Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].SenderID == senderID {
			return history[i]
		}
	}
	return nil
}
