package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/ws"
)

func TestGetProfileCreatesOnFirstAccess(t *testing.T) {
	d := newDeps()
	d.users.On("GetUser", mock.Anything, "alice").Return(nil, repositories.ErrUserNotFound).Once()
	d.users.On("EnsureUser", mock.Anything, "alice", "alice@example.com").Return(models.User{UID: "alice", Email: "alice@example.com"}, nil).Once()

	rec := do(d.router(alice), http.MethodGet, "/profile", "")

	require.Equal(t, http.StatusOK, rec.Code)
	d.assert(t)
}

func TestUpdateProfileMergesNamedFields(t *testing.T) {
	d := newDeps()
	d.users.On("EnsureUser", mock.Anything, "alice", "alice@example.com").Return(models.User{UID: "alice"}, nil).Once()
	d.users.On("UpdateProfile", mock.Anything, "alice", mock.MatchedBy(func(u models.ProfileUpdate) bool {
		return u.Name != nil && *u.Name == "Alice" && u.Gender == nil && u.AvatarURL == nil
	})).Return(models.User{UID: "alice", Name: "Alice"}, nil).Once()

	rec := do(d.router(alice), http.MethodPut, "/profile", `{"name":" Alice "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	d.hub.AssertCalled(t, "Notify", mock.Anything, []string{ws.TopicUsers})
	d.assert(t)
}

func TestUpdateProfileShortName(t *testing.T) {
	d := newDeps()

	rec := do(d.router(alice), http.MethodPut, "/profile", `{"name":"Al"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.assert(t)
}

func TestUpdateStatusTooLong(t *testing.T) {
	d := newDeps()

	rec := do(d.router(alice), http.MethodPut, "/profile/status", `{"custom_status":"`+strings.Repeat("a", 51)+`"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.assert(t)
}

func TestUploadAvatarStoresDataURL(t *testing.T) {
	d := newDeps()
	d.users.On("EnsureUser", mock.Anything, "alice", "alice@example.com").Return(models.User{UID: "alice"}, nil).Once()
	d.users.On("UpdateProfile", mock.Anything, "alice", mock.MatchedBy(func(u models.ProfileUpdate) bool {
		return u.AvatarURL != nil && strings.HasPrefix(*u.AvatarURL, "data:image/jpeg;base64,")
	})).Return(models.User{UID: "alice"}, nil).Once()

	body, contentType := pngUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/profile/avatar", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	d.router(alice).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	d.assert(t)
}

func TestFileAppealRequiresBan(t *testing.T) {
	d := newDeps()
	d.users.On("GetUser", mock.Anything, "alice").Return(models.User{UID: "alice"}, nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/appeals", `{"message":"please"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	d.assert(t)
}

func TestFileAppeal(t *testing.T) {
	d := newDeps()
	d.users.On("GetUser", mock.Anything, "alice").Return(models.User{UID: "alice", IsBanned: true}, nil).Once()
	d.appeals.On("CreateAppeal", mock.Anything, models.BanAppeal{
		UserID: "alice", UserEmail: "alice@example.com", Message: "please",
	}).Return(models.BanAppeal{ID: "a1", UserID: "alice", Status: models.AppealPending}, nil).Once()

	rec := do(d.router(alice), http.MethodPost, "/appeals", `{"message":" please "}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	d.hub.AssertCalled(t, "Notify", mock.Anything, []string{ws.TopicAppeals})
	assert.Contains(t, rec.Body.String(), `"a1"`)
	d.assert(t)
}

func TestUploadAvatarCorruptImage(t *testing.T) {
	d := newDeps()
	body, contentType := pngUpload(t)
	raw := body.Bytes()
	// Keep the multipart framing and the PNG signature, drop the image data.
	start := bytes.Index(raw, []byte("\x89PNG"))
	require.GreaterOrEqual(t, start, 0)
	end := bytes.LastIndex(raw, []byte("\r\n--"))
	truncated := append(append([]byte{}, raw[:start+24]...), raw[end:]...)

	req := httptest.NewRequest(http.MethodPost, "/profile/avatar", bytes.NewReader(truncated))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	d.router(alice).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	d.assert(t)
}
