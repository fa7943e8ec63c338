package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
)

const conversationColumns = `id, user_a, user_b, last_activity_at, created_at`

// ConversationRepository persists conversations.
type ConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	c := &model.Conversation{}
	if err := row.Scan(&c.ID, &c.UserA, &c.UserB, &c.LastActivityAt, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return scanConversation(r.db.QueryRow(ctx, query, id))
}

func (r *ConversationRepository) FindByPair(ctx context.Context, userA, userB int64) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_a = $1 AND user_b = $2`
	return scanConversation(r.db.QueryRow(ctx, query, userA, userB))
}

// CreateOrGet relies on the (user_a, user_b) unique constraint so concurrent
// opens of the same pair converge on one row.
func (r *ConversationRepository) CreateOrGet(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	query := `
		INSERT INTO conversations (id, user_a, user_b, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_a, user_b) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, conv.ID, conv.UserA, conv.UserB, conv.LastActivityAt, conv.CreatedAt); err != nil {
		return nil, err
	}
	return r.FindByPair(ctx, conv.UserA, conv.UserB)
}

func (r *ConversationRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_a = $1 OR user_b = $1
		ORDER BY last_activity_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
