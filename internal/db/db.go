package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"realtime-chat/internal/logger"
)

// Connect opens the Postgres pool and applies the schema.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Migrate creates the collections if they do not exist. It is safe to run on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            uid TEXT PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT '',
            mobile TEXT NOT NULL DEFAULT '',
            age TEXT NOT NULL DEFAULT '',
            gender TEXT NOT NULL DEFAULT '',
            custom_status TEXT NOT NULL DEFAULT '',
            chat_wallpaper TEXT NOT NULL DEFAULT '',
            is_banned BOOLEAN NOT NULL DEFAULT FALSE,
            last_seen TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS chats (
            id TEXT PRIMARY KEY,
            type TEXT NOT NULL,
            is_public BOOLEAN NOT NULL DEFAULT FALSE,
            group_name TEXT NOT NULL DEFAULT '',
            group_avatar TEXT NOT NULL DEFAULT '',
            participants TEXT[] NOT NULL DEFAULT '{}',
            last_message TEXT NOT NULL DEFAULT '',
            last_message_type TEXT NOT NULL DEFAULT '',
            last_message_time TIMESTAMPTZ,
            last_sender_id TEXT NOT NULL DEFAULT '',
            pinned_by TEXT[] NOT NULL DEFAULT '{}',
            muted_by TEXT[] NOT NULL DEFAULT '{}',
            archived_by TEXT[] NOT NULL DEFAULT '{}',
            nicknames JSONB NOT NULL DEFAULT '{}',
            theme TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS chats_participants_idx ON chats USING GIN (participants);`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            seq BIGSERIAL,
            chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            type TEXT NOT NULL DEFAULT 'text',
            text TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            audio_url TEXT NOT NULL DEFAULT '',
            poll JSONB,
            reply_to JSONB,
            reactions JSONB NOT NULL DEFAULT '{}',
            starred_by TEXT[] NOT NULL DEFAULT '{}',
            read_by TEXT[] NOT NULL DEFAULT '{}',
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            is_forwarded BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS messages_chat_order_idx ON messages (chat_id, created_at, seq);`,
		`CREATE INDEX IF NOT EXISTS messages_starred_idx ON messages USING GIN (starred_by);`,
		`CREATE TABLE IF NOT EXISTS ban_appeals (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            user_email TEXT NOT NULL DEFAULT '',
            message TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	logger.Log.Info("database_migrations_applied", zap.Int("statements", len(migrations)))
	return nil
}
