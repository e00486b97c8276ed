package handlers

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/ws"
)

func expectMember(d *testDeps, chat models.Chat) {
	d.chats.On("GetChat", mock.Anything, chat.ID).Return(chat, nil)
}

func expectActiveUser(d *testDeps, uid string) {
	d.users.On("GetUser", mock.Anything, uid).Return(models.User{UID: uid, Name: "Alice"}, nil)
}

func TestSendTextWritesMessageThenSummary(t *testing.T) {
	d := newDeps()
	chat := groupChat("g1", "alice", "bob")
	expectMember(d, chat)
	expectActiveUser(d, "alice")
	d.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Text == "hi" && m.SenderID == "alice" && m.ChatID == "g1" &&
			assert.ObjectsAreEqual([]string{"alice"}, []string(m.ReadBy))
	})).Return(models.Message{ID: "m1", ChatID: "g1", SenderID: "alice", Type: models.MessageTypeText, Text: "hi"}, nil).Once()
	d.chats.On("UpdateSummary", mock.Anything, "g1", mock.MatchedBy(func(s models.ChatSummaryUpdate) bool {
		return s.LastMessage == "hi" && s.LastSenderID == "alice" && s.LastMessageType == models.MessageTypeText
	})).Return(nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages", `{"text":"  hi  "}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	d.hub.AssertCalled(t, "Notify", mock.Anything, []string{
		ws.ChatsTopic("alice"), ws.ChatsTopic("bob"), ws.TopicAdminChats, ws.MessagesTopic("g1"),
	})
	d.assert(t)
}

func TestSendTextSummaryFailureKeepsMessage(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	expectActiveUser(d, "alice")
	d.messages.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{ID: "m1", Type: models.MessageTypeText, Text: "hi"}, nil).Once()
	d.chats.On("UpdateSummary", mock.Anything, "g1", mock.Anything).Return(assert.AnError).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages", `{"text":"hi"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	d.assert(t)
}

func TestSendTextBannedUser(t *testing.T) {
	d := newDeps()
	d.users.On("GetUser", mock.Anything, "alice").Return(models.User{UID: "alice", IsBanned: true}, nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages", `{"text":"hi"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	d.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	d.assert(t)
}

func TestSendTextEmpty(t *testing.T) {
	d := newDeps()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages", `{"text":"   "}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.assert(t)
}

func TestSendReplyCapturesSnapshot(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice", "bob"))
	expectActiveUser(d, "alice")
	long := strings.Repeat("x", 150)
	d.messages.On("GetMessage", mock.Anything, "g1", "m0").Return(models.Message{ID: "m0", SenderID: "bob", Type: models.MessageTypeText, Text: long}, nil).Once()
	d.users.On("GetUser", mock.Anything, "bob").Return(models.User{UID: "bob", Name: "Bob"}, nil).Once()
	d.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ReplyTo != nil && m.ReplyTo.ID == "m0" && m.ReplyTo.SenderName == "Bob" && len(m.ReplyTo.Text) == 100
	})).Return(models.Message{ID: "m1", Type: models.MessageTypeText, Text: "re"}, nil).Once()
	d.chats.On("UpdateSummary", mock.Anything, "g1", mock.Anything).Return(nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages", `{"text":"re","reply_to":"m0"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	d.assert(t)
}

func TestSendPollValidation(t *testing.T) {
	d := newDeps()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/polls", `{"question":"Lunch?","options":["pizza"," "]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), chatops.ErrPollOptions.Error())
	d.assert(t)
}

func TestSendPollSummary(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	expectActiveUser(d, "alice")
	d.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Type == models.MessageTypePoll && m.Poll != nil && len(m.Poll.Options) == 2
	})).Return(models.Message{
		ID: "m1", Type: models.MessageTypePoll, Poll: &models.Poll{Question: "Lunch?"},
	}, nil).Once()
	d.chats.On("UpdateSummary", mock.Anything, "g1", mock.MatchedBy(func(s models.ChatSummaryUpdate) bool {
		return s.LastMessage == "📊 Poll: Lunch?"
	})).Return(nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/polls", `{"question":"Lunch?","options":["pizza","sushi"]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	d.assert(t)
}

func pngUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var raw bytes.Buffer
	require.NoError(t, png.Encode(&raw, img))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "pic.png")
	require.NoError(t, err)
	_, err = part.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestSendImageStoresAndSends(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	expectActiveUser(d, "alice")
	d.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Type == models.MessageTypeImage && strings.HasPrefix(m.ImageURL, "mem://chat_images/g1/")
	})).Return(models.Message{ID: "m1", Type: models.MessageTypeImage, ImageURL: "mem://x"}, nil).Once()
	d.chats.On("UpdateSummary", mock.Anything, "g1", mock.MatchedBy(func(s models.ChatSummaryUpdate) bool {
		return s.LastMessage == "📷 Photo"
	})).Return(nil).Once()

	body, contentType := pngUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/chats/g1/messages/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	d.router(alice).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	d.assert(t)
}

func TestSendAudioRejectsImage(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	expectActiveUser(d, "alice")

	body, contentType := pngUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/chats/g1/messages/audio", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	d.router(alice).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestEditBySenderOnly(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice", "bob"))
	d.messages.On("GetMessage", mock.Anything, "g1", "m1").Return(models.Message{ID: "m1", ChatID: "g1", SenderID: "bob", Type: models.MessageTypeText, Text: "x"}, nil).Once()

	rec := do(d.router(alice), http.MethodPatch, "/chats/g1/messages/m1", `{"text":"y"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	d.messages.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything)
	d.assert(t)
}

func TestEditKeepsReadBy(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice", "bob"))
	d.messages.On("GetMessage", mock.Anything, "g1", "m1").Return(models.Message{
		ID: "m1", ChatID: "g1", SenderID: "alice", Type: models.MessageTypeText, Text: "x", ReadBy: []string{"alice", "bob"},
	}, nil).Once()
	d.messages.On("SaveMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Text == "y" && m.EditedAt != nil && len(m.ReadBy) == 2
	})).Return(nil).Once()

	rec := do(d.router(alice), http.MethodPatch, "/chats/g1/messages/m1", `{"text":"y"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	d.hub.AssertCalled(t, "Notify", mock.Anything, []string{ws.MessagesTopic("g1")})
	d.assert(t)
}

func TestDeleteThenReactConflicts(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	d.messages.On("GetMessage", mock.Anything, "g1", "m1").Return(models.Message{
		ID: "m1", ChatID: "g1", SenderID: "alice", Type: models.MessageTypeText, IsDeleted: true,
	}, nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages/m1/reactions", `{"emoji":"👍"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	d.assert(t)
}

func TestSoftDeleteClearsPayload(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	d.messages.On("GetMessage", mock.Anything, "g1", "m1").Return(models.Message{
		ID: "m1", ChatID: "g1", SenderID: "alice", Type: models.MessageTypeText, Text: "secret",
		Reactions: models.Reactions{"👍": {"bob"}},
	}, nil).Once()
	d.messages.On("SaveMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.IsDeleted && m.Text == "" && len(m.Reactions) == 0
	})).Return(nil).Once()

	rec := do(d.router(alice), http.MethodDelete, "/chats/g1/messages/m1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	d.assert(t)
}

func TestReadIsIdempotent(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	d.messages.On("GetMessage", mock.Anything, "g1", "m1").Return(models.Message{
		ID: "m1", ChatID: "g1", SenderID: "bob", ReadBy: []string{"bob", "alice"},
	}, nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages/m1/read", "")

	require.Equal(t, http.StatusOK, rec.Code)
	d.messages.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything)
	d.hub.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	d.assert(t)
}

func TestVoteMovesVote(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	poll, err := chatops.NewPoll("Lunch?", []string{"pizza", "sushi"})
	require.NoError(t, err)
	poll.Options[0].Votes = []string{"alice"}
	poll.VotedBy = []string{"alice"}
	d.messages.On("GetMessage", mock.Anything, "g1", "m1").Return(models.Message{
		ID: "m1", ChatID: "g1", SenderID: "bob", Type: models.MessageTypePoll, Poll: poll,
	}, nil).Once()
	d.messages.On("SaveMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return len(m.Poll.Options[0].Votes) == 0 &&
			assert.ObjectsAreEqual([]string{"alice"}, m.Poll.Options[1].Votes) &&
			assert.ObjectsAreEqual([]string{"alice"}, m.Poll.VotedBy)
	})).Return(nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages/m1/vote", `{"option_id":"opt_1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	d.assert(t)
}

func TestForwardRequiresTargetMembership(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	expectActiveUser(d, "alice")
	d.messages.On("GetMessage", mock.Anything, "g1", "m1").Return(models.Message{ID: "m1", SenderID: "bob", Type: models.MessageTypeText, Text: "x"}, nil).Once()
	d.chats.On("GetChat", mock.Anything, "g2").Return(groupChat("g2", "bob"), nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages/m1/forward", `{"target_chat_id":"g2"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	d.assert(t)
}

func TestForwardWritesMarkedCopy(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	expectActiveUser(d, "alice")
	d.messages.On("GetMessage", mock.Anything, "g1", "m1").Return(models.Message{
		ID: "m1", SenderID: "bob", Type: models.MessageTypeText, Text: "x",
		Reactions: models.Reactions{"👍": {"bob"}}, StarredBy: []string{"bob"},
	}, nil).Once()
	d.chats.On("GetChat", mock.Anything, "g2").Return(groupChat("g2", "alice", "carol"), nil).Once()
	d.messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ChatID == "g2" && m.IsForwarded && m.Text == "x" && len(m.Reactions) == 0 && len(m.StarredBy) == 0
	})).Return(models.Message{ID: "m2", ChatID: "g2", Type: models.MessageTypeText, Text: "x", IsForwarded: true}, nil).Once()
	d.chats.On("UpdateSummary", mock.Anything, "g2", mock.MatchedBy(func(s models.ChatSummaryUpdate) bool {
		return s.LastMessage == "Forwarded message"
	})).Return(nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages/m1/forward", `{"target_chat_id":"g2"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	d.assert(t)
}

func TestSearchMessages(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	d.messages.On("ListRecent", mock.Anything, "g1", 50).Return([]models.Message{
		{ID: "a", Type: models.MessageTypeText, Text: "Hello World"},
		{ID: "b", Type: models.MessageTypeText, Text: "bye"},
		{ID: "c", Type: models.MessageTypeText, Text: "hello again", IsDeleted: true},
	}, nil).Once()

	rec := do(d.router(alice), http.MethodGet, "/chats/g1/messages/search?q=HELLO", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "a", resp.Messages[0].ID)
	d.assert(t)
}

func TestListMessagesLimit(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	d.messages.On("ListRecent", mock.Anything, "g1", maxPageSize).Return([]models.Message{}, nil).Once()

	rec := do(d.router(alice), http.MethodGet, "/chats/g1/messages?limit=5000", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(d.router(alice), http.MethodGet, "/chats/g1/messages?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.assert(t)
}

func TestMessageNotFound(t *testing.T) {
	d := newDeps()
	expectMember(d, groupChat("g1", "alice"))
	d.messages.On("GetMessage", mock.Anything, "g1", "zz").Return(nil, repositories.ErrMessageNotFound).Once()

	rec := do(d.router(alice), http.MethodPost, "/chats/g1/messages/zz/star", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	d.assert(t)
}
