package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
)

const conversationColumns = `id, user_a, user_b, last_activity_at, created_at`

type conversationRow struct {
	ID             int64 `db:"id"`
	UserA          int64 `db:"user_a"`
	UserB          int64 `db:"user_b"`
	LastActivityAt int64 `db:"last_activity_at"`
	CreatedAt      int64 `db:"created_at"`
}

func (r conversationRow) toModel() *model.Conversation {
	return &model.Conversation{
		ID:             r.ID,
		UserA:          r.UserA,
		UserB:          r.UserB,
		LastActivityAt: fromMillis(r.LastActivityAt),
		CreatedAt:      fromMillis(r.CreatedAt),
	}
}

type ConversationRepository struct {
	db *sqlx.DB
}

func (r *ConversationRepository) get(ctx context.Context, query string, args ...any) (*model.Conversation, error) {
	var row conversationRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	return r.get(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
}

func (r *ConversationRepository) FindByPair(ctx context.Context, userA, userB int64) (*model.Conversation, error) {
	return r.get(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE user_a = ? AND user_b = ?`, userA, userB)
}

func (r *ConversationRepository) CreateOrGet(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_a, user_b, last_activity_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_a, user_b) DO NOTHING`,
		conv.ID, conv.UserA, conv.UserB, toMillis(conv.LastActivityAt), toMillis(conv.CreatedAt))
	if err != nil {
		return nil, err
	}
	return r.FindByPair(ctx, conv.UserA, conv.UserB)
}

func (r *ConversationRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	var rows []conversationRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_a = ? OR user_b = ?
		ORDER BY last_activity_at DESC, id DESC`,
		userID, userID)
	if err != nil {
		return nil, err
	}

	convs := make([]*model.Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, row.toModel())
	}
	return convs, nil
}
