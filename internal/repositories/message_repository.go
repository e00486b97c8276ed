package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"realtime-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, seq, chat_id, sender_id, type, text, image_url, audio_url, poll, reply_to, reactions,
        starred_by, read_by, is_deleted, is_forwarded, edited_at, created_at`

// MessageRepository abstracts the per-chat messages collection.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, chatID, messageID string) (models.Message, error)
	ListRecent(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	SaveMessage(ctx context.Context, msg models.Message) error
	ListStarred(ctx context.Context, uid string) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message. The server assigns created_at and seq.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Reactions == nil {
		msg.Reactions = models.Reactions{}
	}
	var out models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages
        (id, chat_id, sender_id, type, text, image_url, audio_url, poll, reply_to, reactions, starred_by, read_by, is_forwarded)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING `+messageColumns,
		msg.ID, msg.ChatID, msg.SenderID, msg.Type, msg.Text, msg.ImageURL, msg.AudioURL, msg.Poll, msg.ReplyTo,
		msg.Reactions, nonNil(msg.StarredBy), nonNil(msg.ReadBy), msg.IsForwarded).
		StructScan(&out)
	if err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	return out, nil
}

// GetMessage retrieves a single message of a chat.
func (r *MessageRepo) GetMessage(ctx context.Context, chatID, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1 AND chat_id=$2`, messageID, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListRecent returns the newest limit messages of a chat in ascending order.
func (r *MessageRepo) ListRecent(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	query := `SELECT * FROM (
            SELECT ` + messageColumns + ` FROM messages WHERE chat_id=$1
            ORDER BY created_at DESC, seq DESC LIMIT $2
        ) recent ORDER BY created_at ASC, seq ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, chatID, limit)
	return msgs, err
}

// SaveMessage overwrites the mutable fields of a message with the given values.
func (r *MessageRepo) SaveMessage(ctx context.Context, msg models.Message) error {
	if msg.Reactions == nil {
		msg.Reactions = models.Reactions{}
	}
	return expectOne(r.db.ExecContext(ctx, `UPDATE messages SET text=$1, image_url=$2, audio_url=$3, poll=$4, reactions=$5,
        starred_by=$6, read_by=$7, is_deleted=$8, edited_at=$9 WHERE id=$10 AND chat_id=$11`,
		msg.Text, msg.ImageURL, msg.AudioURL, msg.Poll, msg.Reactions, nonNil(msg.StarredBy), nonNil(msg.ReadBy),
		msg.IsDeleted, msg.EditedAt, msg.ID, msg.ChatID))(ErrMessageNotFound)
}

// ListStarred returns messages uid starred in chats uid still belongs to, newest first.
func (r *MessageRepo) ListStarred(ctx context.Context, uid string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT m.id, m.seq, m.chat_id, m.sender_id, m.type, m.text, m.image_url, m.audio_url, m.poll, m.reply_to,
        m.reactions, m.starred_by, m.read_by, m.is_deleted, m.is_forwarded, m.edited_at, m.created_at
        FROM messages m
        JOIN chats c ON c.id = m.chat_id
        WHERE $1 = ANY(m.starred_by) AND $1 = ANY(c.participants) AND m.is_deleted = FALSE
        ORDER BY m.created_at DESC, m.seq DESC`, uid)
	return msgs, err
}
