// Package repository declares the persistence contracts of the chat service.
// Implementations live in the postgres (pgxpool) and sqlite (sqlx) subpackages.
package repository

import (
	"context"
	"errors"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
)

// UserRepository reads the users table owned by the profile service.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error)
}

// RelationRepository reads friendships and blocks owned by the friends service.
type RelationRepository interface {
	AreFriends(ctx context.Context, userID, otherID int64) (bool, error)
	// IsBlocked reports a block in either direction.
	IsBlocked(ctx context.Context, userID, otherID int64) (bool, error)
}

type ConversationRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	FindByPair(ctx context.Context, userA, userB int64) (*model.Conversation, error)
	// CreateOrGet inserts conv unless the pair already exists and returns the stored row.
	CreateOrGet(ctx context.Context, conv *model.Conversation) (*model.Conversation, error)
	// ListByUser returns the user's conversations, most recent activity first.
	ListByUser(ctx context.Context, userID int64) ([]*model.Conversation, error)
}

type MessageRepository interface {
	// Append inserts msg and raises the conversation's last_activity_at to at
	// least msg.CreatedAt in one transaction.
	Append(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	// ListBefore returns up to limit messages older than before (exclusive),
	// newest first. A nil cursor starts from the newest message.
	ListBefore(ctx context.Context, conversationID int64, before *model.Message, limit int) ([]*model.Message, error)
	// Latest returns the newest message per conversation id.
	Latest(ctx context.Context, conversationIDs []int64) (map[int64]*model.Message, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Repositories bundles one backend's implementations.
type Repositories struct {
	Users         UserRepository
	Relations     RelationRepository
	Conversations ConversationRepository
	Messages      MessageRepository
	Notifications NotificationRepository
}
