package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
)

const messageColumns = `id, conversation_id, sender_id, content, type, attachments, created_at`

type messageRow struct {
	ID             int64             `db:"id"`
	ConversationID int64             `db:"conversation_id"`
	SenderID       int64             `db:"sender_id"`
	Content        sql.NullString    `db:"content"`
	Type           string            `db:"type"`
	Attachments    model.Attachments `db:"attachments"`
	CreatedAt      int64             `db:"created_at"`
}

func (r messageRow) toModel() *model.Message {
	m := &model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Type:           model.MessageType(r.Type),
		Attachments:    r.Attachments,
		CreatedAt:      fromMillis(r.CreatedAt),
	}
	if r.Content.Valid {
		content := r.Content.String
		m.Content = &content
	}
	return m
}

func toModels(rows []messageRow) []*model.Message {
	out := make([]*model.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}

type MessageRepository struct {
	db *sqlx.DB
}

func (r *MessageRepository) Append(ctx context.Context, msg *model.Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	attachments, err := msg.Attachments.Value()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, conversation_id, sender_id, content, type, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, string(msg.Type), attachments, toMillis(msg.CreatedAt),
	); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_activity_at = MAX(last_activity_at, ?) WHERE id = ?`,
		toMillis(msg.CreatedAt), msg.ConversationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}

	return tx.Commit()
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	var row messageRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM chat_messages WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *MessageRepository) ListBefore(ctx context.Context, conversationID int64, before *model.Message, limit int) ([]*model.Message, error) {
	var rows []messageRow
	var err error
	if before == nil {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT `+messageColumns+`
			FROM chat_messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?`,
			conversationID, limit)
	} else {
		cursor := toMillis(before.CreatedAt)
		err = r.db.SelectContext(ctx, &rows, `
			SELECT `+messageColumns+`
			FROM chat_messages
			WHERE conversation_id = ?
			  AND (created_at < ? OR (created_at = ? AND id < ?))
			ORDER BY created_at DESC, id DESC
			LIMIT ?`,
			conversationID, cursor, cursor, before.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

func (r *MessageRepository) Latest(ctx context.Context, conversationIDs []int64) (map[int64]*model.Message, error) {
	latest := make(map[int64]*model.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+`,
			       ROW_NUMBER() OVER (PARTITION BY conversation_id ORDER BY created_at DESC, id DESC) AS rn
			FROM chat_messages
			WHERE conversation_id IN (?)
		) WHERE rn = 1`, conversationIDs)
	if err != nil {
		return nil, err
	}

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, m := range toModels(rows) {
		latest[m.ConversationID] = m
	}
	return latest, nil
}

type NotificationRepository struct {
	db *sqlx.DB
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, payload, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Type), string(n.Payload), n.Read, toMillis(n.CreatedAt))
	return err
}
