package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

const chatColumns = `id, type, is_public, group_name, group_avatar, participants, last_message, last_message_type,
        last_message_time, last_sender_id, pinned_by, muted_by, archived_by, nicknames, theme, created_at`

// ChatRepository abstracts the chats collection.
type ChatRepository interface {
	CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	FindDirectChat(ctx context.Context, a, b string) (models.Chat, error)
	ListChatsForUser(ctx context.Context, uid string) ([]models.Chat, error)
	ListAllChats(ctx context.Context) ([]models.Chat, error)
	SaveMembership(ctx context.Context, chat models.Chat) error
	UpdateSummary(ctx context.Context, chatID string, summary models.ChatSummaryUpdate) error
	SetTheme(ctx context.Context, chatID, theme string) error
	DeleteChat(ctx context.Context, chatID string) error
	CountChats(ctx context.Context) (int, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateChat inserts a chat. An empty id is generated; created_at is server time.
func (r *ChatRepo) CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.Nicknames == nil {
		chat.Nicknames = models.Nicknames{}
	}
	var out models.Chat
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chats (id, type, is_public, group_name, group_avatar, participants, pinned_by, muted_by, archived_by, nicknames, theme)
        VALUES ($1, $2, $3, $4, $5, $6, '{}', '{}', '{}', $7, $8)
        RETURNING `+chatColumns,
		chat.ID, chat.Type, chat.IsPublic, chat.GroupName, chat.GroupAvatar, chat.Participants, chat.Nicknames, chat.Theme).
		StructScan(&out)
	if err != nil {
		return models.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return out, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// FindDirectChat returns the direct chat whose participants contain both a and b.
func (r *ChatRepo) FindDirectChat(ctx context.Context, a, b string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats
        WHERE type='direct' AND participants @> ARRAY[$1, $2]::TEXT[]
        ORDER BY created_at ASC LIMIT 1`, a, b)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// ListChatsForUser returns chats containing uid, newest activity first.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, uid string) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats
        WHERE $1 = ANY(participants) ORDER BY created_at ASC`, uid)
	if err != nil {
		return nil, err
	}
	chatops.SortChats(chats)
	return chats, nil
}

// ListAllChats returns every chat, newest activity first.
func (r *ChatRepo) ListAllChats(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats ORDER BY created_at ASC`); err != nil {
		return nil, err
	}
	chatops.SortChats(chats)
	return chats, nil
}

// SaveMembership overwrites the participant and per-user overlay fields with the given values.
func (r *ChatRepo) SaveMembership(ctx context.Context, chat models.Chat) error {
	if chat.Nicknames == nil {
		chat.Nicknames = models.Nicknames{}
	}
	return expectOne(r.db.ExecContext(ctx, `UPDATE chats SET participants=$1, pinned_by=$2, muted_by=$3, archived_by=$4, nicknames=$5 WHERE id=$6`,
		nonNil(chat.Participants), nonNil(chat.PinnedBy), nonNil(chat.MutedBy), nonNil(chat.ArchivedBy), chat.Nicknames, chat.ID))(ErrChatNotFound)
}

// UpdateSummary writes the denormalized last-message fields.
func (r *ChatRepo) UpdateSummary(ctx context.Context, chatID string, s models.ChatSummaryUpdate) error {
	at := s.LastMessageTime
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return expectOne(r.db.ExecContext(ctx, `UPDATE chats SET last_message=$1, last_message_type=$2, last_message_time=$3, last_sender_id=$4 WHERE id=$5`,
		s.LastMessage, s.LastMessageType, at, s.LastSenderID, chatID))(ErrChatNotFound)
}

// SetTheme stores the cosmetic theme.
func (r *ChatRepo) SetTheme(ctx context.Context, chatID, theme string) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE chats SET theme=$1 WHERE id=$2`, theme, chatID))(ErrChatNotFound)
}

// DeleteChat removes a chat; messages go with it.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID))(ErrChatNotFound)
}

// CountChats returns the number of chats.
func (r *ChatRepo) CountChats(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM chats`)
	return n, err
}

func nonNil(set []string) pq.StringArray {
	if set == nil {
		return pq.StringArray{}
	}
	return set
}
