package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
)

const messageColumns = `id, conversation_id, sender_id, content, type, attachments, created_at`

// MessageRepository persists chat messages.
type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func scanMessage(row rowScanner) (*model.Message, error) {
	m := &model.Message{}
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.Attachments, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) Append(ctx context.Context, msg *model.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO chat_messages (id, conversation_id, sender_id, content, type, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, insert,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		string(msg.Type),
		msg.Attachments,
		msg.CreatedAt,
	); err != nil {
		return err
	}

	bump := `UPDATE conversations SET last_activity_at = GREATEST(last_activity_at, $2) WHERE id = $1`
	tag, err := tx.Exec(ctx, bump, msg.ConversationID, msg.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return tx.Commit(ctx)
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1`
	return scanMessage(r.db.QueryRow(ctx, query, id))
}

func (r *MessageRepository) ListBefore(ctx context.Context, conversationID int64, before *model.Message, limit int) ([]*model.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if before == nil {
		query := `
			SELECT ` + messageColumns + `
			FROM chat_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		rows, err = r.db.Query(ctx, query, conversationID, limit)
	} else {
		query := `
			SELECT ` + messageColumns + `
			FROM chat_messages
			WHERE conversation_id = $1
			  AND (created_at < $2 OR (created_at = $2 AND id < $3))
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`
		rows, err = r.db.Query(ctx, query, conversationID, before.CreatedAt, before.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *MessageRepository) Latest(ctx context.Context, conversationIDs []int64) (map[int64]*model.Message, error) {
	latest := make(map[int64]*model.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	query := `
		SELECT DISTINCT ON (conversation_id) ` + messageColumns + `
		FROM chat_messages
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, conversationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		latest[m.ConversationID] = m
	}
	return latest, rows.Err()
}
