package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"realtime-chat/internal/models"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, uid string) (models.User, error) {
	args := m.Called(ctx, uid)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) EnsureUser(ctx context.Context, uid, email string) (models.User, error) {
	args := m.Called(ctx, uid, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) UpdateProfile(ctx context.Context, uid string, upd models.ProfileUpdate) (models.User, error) {
	args := m.Called(ctx, uid, upd)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) SetBanned(ctx context.Context, uid string, banned bool) error {
	args := m.Called(ctx, uid, banned)
	return args.Error(0)
}

func (m *UserRepositoryMock) SetLastSeen(ctx context.Context, uid string, at time.Time) error {
	args := m.Called(ctx, uid, at)
	return args.Error(0)
}

func (m *UserRepositoryMock) CountUsers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	args := m.Called(ctx, chat)
	var out models.Chat
	if val := args.Get(0); val != nil {
		out = val.(models.Chat)
	}
	return out, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) FindDirectChat(ctx context.Context, a, b string) (models.Chat, error) {
	args := m.Called(ctx, a, b)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListChatsForUser(ctx context.Context, uid string) ([]models.Chat, error) {
	args := m.Called(ctx, uid)
	var list []models.Chat
	if val := args.Get(0); val != nil {
		list = val.([]models.Chat)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) ListAllChats(ctx context.Context) ([]models.Chat, error) {
	args := m.Called(ctx)
	var list []models.Chat
	if val := args.Get(0); val != nil {
		list = val.([]models.Chat)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) SaveMembership(ctx context.Context, chat models.Chat) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

func (m *ChatRepositoryMock) UpdateSummary(ctx context.Context, chatID string, summary models.ChatSummaryUpdate) error {
	args := m.Called(ctx, chatID, summary)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetTheme(ctx context.Context, chatID, theme string) error {
	args := m.Called(ctx, chatID, theme)
	return args.Error(0)
}

func (m *ChatRepositoryMock) DeleteChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) CountChats(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, chatID, messageID string) (models.Message, error) {
	args := m.Called(ctx, chatID, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecent(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) SaveMessage(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListStarred(ctx context.Context, uid string) ([]models.Message, error) {
	args := m.Called(ctx, uid)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type AppealRepositoryMock struct {
	mock.Mock
}

func (m *AppealRepositoryMock) CreateAppeal(ctx context.Context, appeal models.BanAppeal) (models.BanAppeal, error) {
	args := m.Called(ctx, appeal)
	var out models.BanAppeal
	if val := args.Get(0); val != nil {
		out = val.(models.BanAppeal)
	}
	return out, args.Error(1)
}

func (m *AppealRepositoryMock) GetAppeal(ctx context.Context, id string) (models.BanAppeal, error) {
	args := m.Called(ctx, id)
	var out models.BanAppeal
	if val := args.Get(0); val != nil {
		out = val.(models.BanAppeal)
	}
	return out, args.Error(1)
}

func (m *AppealRepositoryMock) ListAppeals(ctx context.Context) ([]models.BanAppeal, error) {
	args := m.Called(ctx)
	var list []models.BanAppeal
	if val := args.Get(0); val != nil {
		list = val.([]models.BanAppeal)
	}
	return list, args.Error(1)
}

func (m *AppealRepositoryMock) ResolveAppeal(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *AppealRepositoryMock) DeleteResolved(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	var n int64
	if val := args.Get(0); val != nil {
		n = val.(int64)
	}
	return n, args.Error(1)
}

func (m *AppealRepositoryMock) CountPending(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// NotifierMock records hub notifications. Calls are not asserted by default.
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, topics ...string) {
	m.Called(ctx, topics)
}

func (m *NotifierMock) Evict(topic, uid string) {
	m.Called(topic, uid)
}
