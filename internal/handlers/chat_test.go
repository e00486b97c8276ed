package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/mocks"
	"realtime-chat/internal/models"
	"realtime-chat/internal/realtime"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/storage"
	"realtime-chat/internal/ws"
)

type testDeps struct {
	users    *mocks.UserRepositoryMock
	chats    *mocks.ChatRepositoryMock
	messages *mocks.MessageRepositoryMock
	appeals  *mocks.AppealRepositoryMock
	hub      *mocks.NotifierMock
	pub      *mocks.PublisherMock
	files    *storage.MemoryStore
	presence *realtime.MemoryStore
}

func newDeps() *testDeps {
	d := &testDeps{
		users:    new(mocks.UserRepositoryMock),
		chats:    new(mocks.ChatRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		appeals:  new(mocks.AppealRepositoryMock),
		hub:      new(mocks.NotifierMock),
		pub:      new(mocks.PublisherMock),
		files:    storage.NewMemoryStore(),
		presence: realtime.NewMemoryStore(),
	}
	d.hub.On("Notify", mock.Anything, mock.Anything).Maybe()
	d.hub.On("Evict", mock.Anything, mock.Anything).Maybe()
	return d
}

// router serves the API as id, skipping token verification.
func (d *testDeps) router(id auth.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	fakeAuth := func(c *gin.Context) {
		c.Set(middleware.UserIDKey, id.UID)
		c.Set(middleware.IdentityKey, id)
		c.Next()
	}
	Routes{
		Chats:    NewChatHandler(d.chats, d.users, d.hub, nil, "https://chat.example.com"),
		Messages: NewMessageHandler(d.chats, d.messages, d.users, d.files, d.hub, nil, 50),
		Profile:  NewProfileHandler(d.users, d.hub),
		Appeals:  NewAppealHandler(d.appeals, d.users, d.hub, nil),
		Admin:    NewAdminHandler(d.users, d.chats, d.messages, d.appeals, d.presence, d.hub, d.pub, nil),
	}.Register(r, fakeAuth)
	return r
}

func (d *testDeps) assert(t *testing.T) {
	d.users.AssertExpectations(t)
	d.chats.AssertExpectations(t)
	d.messages.AssertExpectations(t)
	d.appeals.AssertExpectations(t)
	d.pub.AssertExpectations(t)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

var alice = auth.Identity{UID: "alice", Email: "alice@example.com"}

func groupChat(id string, members ...string) models.Chat {
	return models.Chat{ID: id, Type: models.ChatTypeGroup, GroupName: "g", Participants: members}
}

func TestListChatsSortsAndSplitsArchived(t *testing.T) {
	d := newDeps()
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	d.chats.On("ListChatsForUser", mock.Anything, "alice").Return([]models.Chat{
		{ID: "old", Participants: []string{"alice"}, LastMessageTime: &older},
		{ID: "new", Participants: []string{"alice"}, LastMessageTime: &newer},
		{ID: "arch", Participants: []string{"alice"}, ArchivedBy: []string{"alice"}},
	}, nil).Once()

	rec := do(d.router(alice), http.MethodGet, "/chats", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats    []models.Chat `json:"chats"`
		Archived []models.Chat `json:"archived"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Chats, 2)
	assert.Equal(t, "new", resp.Chats[0].ID)
	assert.Equal(t, "old", resp.Chats[1].ID)
	require.Len(t, resp.Archived, 1)
	assert.Equal(t, "arch", resp.Archived[0].ID)
	d.assert(t)
}

func TestListChatsRepoError(t *testing.T) {
	d := newDeps()
	d.chats.On("ListChatsForUser", mock.Anything, "alice").Return(nil, assert.AnError).Once()

	rec := do(d.router(alice), http.MethodGet, "/chats", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	d.assert(t)
}

func TestOpenDirectReusesExistingChat(t *testing.T) {
	d := newDeps()
	existing := models.Chat{ID: "c1", Type: models.ChatTypeDirect, Participants: []string{"alice", "bob"}}
	d.users.On("GetUser", mock.Anything, "bob").Return(models.User{UID: "bob"}, nil).Once()
	d.chats.On("FindDirectChat", mock.Anything, "alice", "bob").Return(existing, nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/direct", `{"user_id":"bob"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var chat models.Chat
	decode(t, rec, &chat)
	assert.Equal(t, "c1", chat.ID)
	d.chats.AssertNotCalled(t, "CreateChat", mock.Anything, mock.Anything)
	d.assert(t)
}

func TestOpenDirectCreatesChat(t *testing.T) {
	d := newDeps()
	d.users.On("GetUser", mock.Anything, "bob").Return(models.User{UID: "bob"}, nil).Once()
	d.chats.On("FindDirectChat", mock.Anything, "alice", "bob").Return(nil, repositories.ErrChatNotFound).Once()
	d.chats.On("CreateChat", mock.Anything, mock.MatchedBy(func(c models.Chat) bool {
		return c.Type == models.ChatTypeDirect && len(c.Participants) == 2
	})).Return(models.Chat{ID: "c2", Type: models.ChatTypeDirect, Participants: []string{"alice", "bob"}}, nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/invite/bob", "")

	require.Equal(t, http.StatusCreated, rec.Code)
	d.hub.AssertCalled(t, "Notify", mock.Anything, []string{ws.ChatsTopic("alice"), ws.ChatsTopic("bob"), ws.TopicAdminChats})
	d.assert(t)
}

func TestInviteSelfRejected(t *testing.T) {
	d := newDeps()

	rec := do(d.router(alice), http.MethodPost, "/invite/alice", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.assert(t)
}

func TestCreateGroupDefaultsName(t *testing.T) {
	d := newDeps()
	d.chats.On("CreateChat", mock.Anything, mock.MatchedBy(func(c models.Chat) bool {
		return c.GroupName == defaultGroupName && assert.ObjectsAreEqual([]string{"alice", "bob", "carol"}, []string(c.Participants))
	})).Return(groupChat("g1", "alice", "bob", "carol"), nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/group", `{"name":"  ","member_ids":["bob","carol","bob"]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	d.assert(t)
}

func TestCreateRoomReturnsJoinLink(t *testing.T) {
	d := newDeps()
	room := groupChat("r1", "alice")
	room.IsPublic = true
	d.chats.On("CreateChat", mock.Anything, mock.MatchedBy(func(c models.Chat) bool { return c.IsPublic })).Return(room, nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/rooms", `{"name":"Lobby"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		JoinLink string `json:"join_link"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "https://chat.example.com/chat?join=r1", resp.JoinLink)
	d.assert(t)
}

func TestJoinRoom(t *testing.T) {
	d := newDeps()
	room := groupChat("r1", "bob")
	room.IsPublic = true
	d.chats.On("GetChat", mock.Anything, "r1").Return(room, nil).Once()
	d.chats.On("SaveMembership", mock.Anything, mock.MatchedBy(func(c models.Chat) bool {
		return c.HasParticipant("alice") && c.HasParticipant("bob")
	})).Return(nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/rooms/r1/join", "")

	require.Equal(t, http.StatusOK, rec.Code)
	d.assert(t)
}

func TestJoinPrivateGroupForbidden(t *testing.T) {
	d := newDeps()
	d.chats.On("GetChat", mock.Anything, "g1").Return(groupChat("g1", "bob"), nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/rooms/g1/join", "")

	require.Equal(t, http.StatusForbidden, rec.Code)
	d.assert(t)
}

func TestArchiveUnpins(t *testing.T) {
	d := newDeps()
	chat := groupChat("g1", "alice", "bob")
	chat.PinnedBy = []string{"alice", "bob"}
	d.chats.On("GetChat", mock.Anything, "g1").Return(chat, nil).Once()
	d.chats.On("SaveMembership", mock.Anything, mock.MatchedBy(func(c models.Chat) bool {
		return assert.ObjectsAreEqual([]string{"bob"}, []string(c.PinnedBy)) &&
			assert.ObjectsAreEqual([]string{"alice"}, []string(c.ArchivedBy))
	})).Return(nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/archive", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"archive":true}`, rec.Body.String())
	d.assert(t)
}

func TestOverlayRequiresMembership(t *testing.T) {
	d := newDeps()
	d.chats.On("GetChat", mock.Anything, "g1").Return(groupChat("g1", "bob"), nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/pin", "")

	require.Equal(t, http.StatusForbidden, rec.Code)
	d.assert(t)
}

func TestLeaveClearsOverlaysAndEvicts(t *testing.T) {
	d := newDeps()
	chat := groupChat("g1", "alice", "bob")
	chat.PinnedBy = []string{"alice"}
	chat.MutedBy = []string{"alice"}
	d.chats.On("GetChat", mock.Anything, "g1").Return(chat, nil).Once()
	d.chats.On("SaveMembership", mock.Anything, mock.MatchedBy(func(c models.Chat) bool {
		return !c.HasParticipant("alice") && len(c.PinnedBy) == 0 && len(c.MutedBy) == 0
	})).Return(nil).Once()

	rec := do(d.router(alice), http.MethodDelete, "/chats/g1/me", "")

	require.Equal(t, http.StatusNoContent, rec.Code)
	d.hub.AssertCalled(t, "Evict", ws.MessagesTopic("g1"), "alice")
	d.hub.AssertCalled(t, "Evict", ws.TypingTopic("g1"), "alice")
	d.assert(t)
}

func TestSetNicknameUnknownMember(t *testing.T) {
	d := newDeps()
	d.chats.On("GetChat", mock.Anything, "g1").Return(groupChat("g1", "alice"), nil).Once()

	rec := do(d.router(alice), http.MethodPut, "/chats/g1/nickname", `{"user_id":"zed","nickname":"Z"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	d.assert(t)
}

func TestDeleteChat(t *testing.T) {
	d := newDeps()
	d.chats.On("GetChat", mock.Anything, "g1").Return(groupChat("g1", "alice", "bob"), nil).Once()
	d.chats.On("DeleteChat", mock.Anything, "g1").Return(nil).Once()

	rec := do(d.router(alice), http.MethodDelete, "/chats/g1", "")

	require.Equal(t, http.StatusNoContent, rec.Code)
	d.hub.AssertCalled(t, "Evict", ws.MessagesTopic("g1"), "bob")
	d.assert(t)
}

func TestDeleteChatNotFound(t *testing.T) {
	d := newDeps()
	d.chats.On("GetChat", mock.Anything, "nope").Return(nil, repositories.ErrChatNotFound).Once()

	rec := do(d.router(alice), http.MethodDelete, "/chats/nope", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	d.assert(t)
}
