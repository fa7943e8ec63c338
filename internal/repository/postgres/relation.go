package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RelationRepository answers friendship and block questions.
type RelationRepository struct {
	db *pgxpool.Pool
}

func NewRelationRepository(db *pgxpool.Pool) *RelationRepository {
	return &RelationRepository{db: db}
}

// AreFriends reports whether both friendship rows are live. Removing a friend
// soft-deletes one direction only.
func (r *RelationRepository) AreFriends(ctx context.Context, userID, otherID int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2 AND deleted = 0)
		   AND EXISTS(SELECT 1 FROM friends WHERE user_id = $2 AND friend_id = $1 AND deleted = 0)
	`
	err := r.db.QueryRow(ctx, query, userID, otherID).Scan(&exists)
	return exists, err
}

func (r *RelationRepository) IsBlocked(ctx context.Context, userID, otherID int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM user_blocks
			WHERE deleted = 0
			  AND ((blocker_id = $1 AND blocked_id = $2) OR (blocker_id = $2 AND blocked_id = $1))
		)
	`
	err := r.db.QueryRow(ctx, query, userID, otherID).Scan(&exists)
	return exists, err
}
