package sqlite

import (
	"context"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
)

// The tables below belong to the profile and friends services in production.
// These helpers seed them for local runs and tests.

// UpsertUser inserts or replaces u.
func (d *DB) UpsertUser(ctx context.Context, u *model.User) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, nickname, name, avatar, is_automated, archetype)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			nickname = excluded.nickname,
			name = excluded.name,
			avatar = excluded.avatar,
			is_automated = excluded.is_automated,
			archetype = excluded.archetype,
			deleted = 0`,
		u.ID, u.Nickname, u.Name, u.Avatar, u.IsAutomated, u.Archetype)
	return err
}

// SetFriends creates or removes the friendship in both directions.
func (d *DB) SetFriends(ctx context.Context, userID, otherID int64, friends bool) error {
	deleted := 1
	if friends {
		deleted = 0
	}
	for _, pair := range [][2]int64{{userID, otherID}, {otherID, userID}} {
		if _, err := d.db.ExecContext(ctx, `
			INSERT INTO friends (user_id, friend_id, deleted) VALUES (?, ?, ?)
			ON CONFLICT (user_id, friend_id) DO UPDATE SET deleted = excluded.deleted`,
			pair[0], pair[1], deleted); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFriend soft-deletes the single row userID -> friendID, the way the
// friends service handles an unfriend.
func (d *DB) RemoveFriend(ctx context.Context, userID, friendID int64) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE friends SET deleted = 1 WHERE user_id = ? AND friend_id = ?`,
		userID, friendID)
	return err
}

// SetBlocked records or lifts a block from blockerID on blockedID.
func (d *DB) SetBlocked(ctx context.Context, blockerID, blockedID int64, blocked bool) error {
	deleted := 1
	if blocked {
		deleted = 0
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO user_blocks (blocker_id, blocked_id, deleted) VALUES (?, ?, ?)
		ON CONFLICT (blocker_id, blocked_id) DO UPDATE SET deleted = excluded.deleted`,
		blockerID, blockedID, deleted)
	return err
}
