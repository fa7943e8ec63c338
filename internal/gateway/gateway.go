// Package gateway is the realtime edge: it authenticates persistent
// connections, groups them into per-user rooms and routes client frames.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/config"
	apperrors "github.com/Bruno2K/team-scrapbook-sub000/internal/errors"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/jwt"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/service"
)

const opTimeout = 15 * time.Second

// MessageSender persists an inbound message.
type MessageSender interface {
	Send(ctx context.Context, senderID int64, req *service.SendRequest) (*model.MessageView, error)
}

// ParticipantChecker loads a conversation on behalf of one of its users.
type ParticipantChecker interface {
	Participant(ctx context.Context, conversationID, userID int64) (*model.Conversation, error)
}

type TokenVerifier interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// Gateway serves authenticated connections over any Transport.
type Gateway struct {
	cfg            config.GatewayConfig
	manager        *Manager
	sender         MessageSender
	participants   ParticipantChecker
	publisher      event.Publisher
	tokens         TokenVerifier
	allowedOrigins []string
	upgrader       websocket.Upgrader
	logger         *slog.Logger
}

// Options collects the collaborators of a Gateway.
type Options struct {
	Config         config.GatewayConfig
	AllowedOrigins []string
	Manager        *Manager
	Sender         MessageSender
	Participants   ParticipantChecker
	// Publisher routes typing events; defaults to Manager.
	Publisher event.Publisher
	Tokens    TokenVerifier
	Logger    *slog.Logger
}

func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = opts.Manager
	}
	if opts.Config.HeartbeatTimeout <= 0 {
		opts.Config.HeartbeatTimeout = 90 * time.Second
	}

	g := &Gateway{
		cfg:            opts.Config,
		manager:        opts.Manager,
		sender:         opts.Sender,
		participants:   opts.Participants,
		publisher:      publisher,
		tokens:         opts.Tokens,
		allowedOrigins: opts.AllowedOrigins,
		logger:         logger,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) Manager() *Manager {
	return g.manager
}

func (g *Gateway) authenticate(token string) (int64, error) {
	if token == "" {
		return 0, apperrors.ErrTokenInvalid
	}
	claims, err := g.tokens.ValidateAccessToken(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.allowedOrigins) == 0 {
		return true
	}
	return slices.Contains(g.allowedOrigins, "*") || slices.Contains(g.allowedOrigins, origin)
}

// Serve runs an authenticated connection until its transport fails or closes.
func (g *Gateway) Serve(ctx context.Context, conn *Connection) {
	g.manager.Join(ctx, conn)
	conn.Start()
	conn.logger.Debug("Connection opened")

	defer func() {
		conn.Close(CloseNormal, "session closed")
		g.manager.Leave(context.WithoutCancel(ctx), conn)
		conn.logger.Debug("Connection closed")
	}()

	for {
		raw, err := conn.Transport().ReadFrame()
		if err != nil {
			return
		}
		conn.Touch()

		frame, err := DecodeFrame(raw)
		if err != nil {
			conn.logger.Debug("Dropping frame", "error", err)
			continue
		}
		g.handle(ctx, conn, frame)
	}
}

func (g *Gateway) handle(ctx context.Context, conn *Connection, frame Inbound) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	switch f := frame.(type) {
	case *MessageFrame:
		g.handleMessage(ctx, conn, f)
	case *TypingFrame:
		g.handleTyping(ctx, conn, f)
	case *PingFrame:
		g.reply(conn, event.Event{Name: event.NamePong, Data: struct{}{}})
	}
}

func (g *Gateway) handleMessage(ctx context.Context, conn *Connection, f *MessageFrame) {
	if f.Request.ConversationID <= 0 {
		return
	}
	view, err := g.sender.Send(ctx, conn.UserID(), &f.Request)
	if err != nil {
		g.logRejected(conn, "message", err)
		return
	}
	// the persisted message doubles as the sender's ack
	g.reply(conn, event.Event{Name: event.NameMessage, Data: view})
}

func (g *Gateway) handleTyping(ctx context.Context, conn *Connection, f *TypingFrame) {
	conv, err := g.participants.Participant(ctx, f.ConversationID, conn.UserID())
	if err != nil {
		g.logRejected(conn, "typing", err)
		return
	}
	evt := event.Event{
		Name: event.NameTyping,
		Data: event.TypingPayload{ConversationID: conv.ID, UserID: conn.UserID()},
	}
	if err := g.publisher.PublishToUser(ctx, conv.Other(conn.UserID()), evt); err != nil {
		conn.logger.Warn("Failed to relay typing", "conversation_id", conv.ID, "error", err)
	}
}

func (g *Gateway) reply(conn *Connection, evt event.Event) {
	payload, err := evt.Encode()
	if err != nil {
		conn.logger.Error("Failed to encode event", "event", evt.Name, "error", err)
		return
	}
	_ = conn.Send(payload)
}

func (g *Gateway) logRejected(conn *Connection, frame string, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && apperrors.HTTPStatus(err) < http.StatusInternalServerError {
		conn.logger.Debug("Frame rejected", "frame", frame, "code", appErr.Code, "reason", appErr.Message)
		return
	}
	conn.logger.Error("Frame failed", "frame", frame, "error", err)
}
