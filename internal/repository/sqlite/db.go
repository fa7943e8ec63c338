// Package sqlite is the single-file backend used for local development and tests.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
)

// Times are stored as unix milliseconds so ORDER BY sorts chronologically.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           INTEGER PRIMARY KEY,
	nickname     TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	avatar       TEXT NOT NULL DEFAULT '',
	is_automated INTEGER NOT NULL DEFAULT 0,
	archetype    TEXT NOT NULL DEFAULT '',
	deleted      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS friends (
	user_id   INTEGER NOT NULL,
	friend_id INTEGER NOT NULL,
	deleted   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, friend_id)
);

CREATE TABLE IF NOT EXISTS user_blocks (
	blocker_id INTEGER NOT NULL,
	blocked_id INTEGER NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (blocker_id, blocked_id)
);

CREATE TABLE IF NOT EXISTS conversations (
	id               INTEGER PRIMARY KEY,
	user_a           INTEGER NOT NULL,
	user_b           INTEGER NOT NULL,
	last_activity_at INTEGER NOT NULL,
	created_at       INTEGER NOT NULL,
	CHECK (user_a < user_b),
	UNIQUE (user_a, user_b)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id              INTEGER PRIMARY KEY,
	conversation_id INTEGER NOT NULL REFERENCES conversations (id),
	sender_id       INTEGER NOT NULL,
	content         TEXT,
	type            TEXT NOT NULL DEFAULT 'TEXT',
	attachments     TEXT NOT NULL DEFAULT '[]',
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_page ON chat_messages (conversation_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id         INTEGER PRIMARY KEY,
	user_id    INTEGER NOT NULL,
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	read       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
`

// DB owns the sqlx handle shared by the repositories.
type DB struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*DB, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Repositories wires every repository onto d.
func (d *DB) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Users:         &UserRepository{db: d.db},
		Relations:     &RelationRepository{db: d.db},
		Conversations: &ConversationRepository{db: d.db},
		Messages:      &MessageRepository{db: d.db},
		Notifications: &NotificationRepository{db: d.db},
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
