package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
)

const userColumns = `id, nickname, name, avatar, is_automated, archetype`

type UserRepository struct {
	db *sqlx.DB
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error) {
	users := make(map[int64]*model.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?) AND deleted = 0`, ids)
	if err != nil {
		return nil, err
	}

	var rows []model.User
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for i := range rows {
		users[rows[i].ID] = &rows[i]
	}
	return users, nil
}

type RelationRepository struct {
	db *sqlx.DB
}

func (r *RelationRepository) AreFriends(ctx context.Context, userID, otherID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM friends WHERE user_id = ? AND friend_id = ? AND deleted = 0)
		   AND EXISTS(SELECT 1 FROM friends WHERE user_id = ? AND friend_id = ? AND deleted = 0)`,
		userID, otherID, otherID, userID)
	return exists, err
}

func (r *RelationRepository) IsBlocked(ctx context.Context, userID, otherID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM user_blocks
			WHERE deleted = 0
			  AND ((blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?))
		)`,
		userID, otherID, otherID, userID)
	return exists, err
}
