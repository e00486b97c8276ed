package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/models"
	"realtime-chat/internal/realtime"
)

type stubUsers struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func (s *stubUsers) GetUser(context.Context, string) (models.User, error) { return models.User{}, nil }
func (s *stubUsers) EnsureUser(_ context.Context, uid, email string) (models.User, error) {
	return models.User{UID: uid, Email: email}, nil
}
func (s *stubUsers) ListUsers(context.Context) ([]models.User, error) { return nil, nil }
func (s *stubUsers) UpdateProfile(context.Context, string, models.ProfileUpdate) (models.User, error) {
	return models.User{}, nil
}
func (s *stubUsers) SetBanned(context.Context, string, bool) error { return nil }
func (s *stubUsers) SetLastSeen(_ context.Context, uid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeen == nil {
		s.lastSeen = map[string]time.Time{}
	}
	s.lastSeen[uid] = at
	return nil
}
func (s *stubUsers) CountUsers(context.Context) (int, error) { return 0, nil }

func (s *stubUsers) seen(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lastSeen[uid]
	return ok
}

func startServer(t *testing.T) (*httptest.Server, *realtime.MemoryStore, *stubUsers, *fakeLoader) {
	t.Helper()
	store := realtime.NewMemoryStore()
	srv, users, loader := serveWith(t, store)
	return srv, store, users, loader
}

func serveWith(t *testing.T, store realtime.Store) (*httptest.Server, *stubUsers, *fakeLoader) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	loader := newFakeLoader()
	hub := NewHub(loader)
	users := &stubUsers{}
	h := NewSessionHandler(hub, auth.NewVerifier("k", ""), store, users)

	r := gin.New()
	r.GET("/ws", h.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, users, loader
}

// slowOffline holds offline presence writes until release is closed.
type slowOffline struct {
	*realtime.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowOffline) SetPresence(ctx context.Context, uid string, p models.Presence) error {
	if p.State == models.PresenceOffline {
		s.once.Do(func() { close(s.entered) })
		<-s.release
	}
	return s.MemoryStore.SetPresence(ctx, uid, p)
}

func dial(t *testing.T, srv *httptest.Server, uid string) *websocket.Conn {
	t.Helper()
	tok, err := auth.Issue("k", "", auth.Identity{UID: uid}, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestSessionSubscribeAndPresence(t *testing.T) {
	srv, store, users, loader := startServer(t)
	loader.set(TopicUsers, []string{"u1"})
	conn := dial(t, srv, "u1")

	require.Eventually(t, func() bool {
		p, _ := store.Presence(context.Background())
		return p["u1"].Online()
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(models.ClientFrame{Op: models.OpSubscribe, Topic: TopicUsers}))
	var f models.ServerFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, models.FrameSnapshot, f.Type)
	assert.JSONEq(t, `["u1"]`, string(f.Data))

	require.NoError(t, conn.WriteJSON(models.ClientFrame{Op: models.OpTyping, ChatID: "c1", Typing: true}))
	require.Eventually(t, func() bool {
		room, _ := store.Typing(context.Background(), "c1")
		return room["u1"].IsTyping
	}, time.Second, 10*time.Millisecond)

	// Drop the connection without a clean close.
	require.NoError(t, conn.UnderlyingConn().Close())

	require.Eventually(t, func() bool {
		p, _ := store.Presence(context.Background())
		room, _ := store.Typing(context.Background(), "c1")
		return p["u1"].State == models.PresenceOffline && len(room) == 0 && users.seen("u1")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionRejectsBadToken(t *testing.T) {
	srv, _, _, _ := startServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=nope"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestSessionPing(t *testing.T) {
	srv, _, _, _ := startServer(t)
	conn := dial(t, srv, "u2")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.ClientFrame{Op: models.OpPing}))
	var f models.ServerFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, models.FramePong, f.Type)
}

func TestSessionFirstConnectRefreshesUsers(t *testing.T) {
	srv, _, _, loader := startServer(t)
	loader.set(TopicUsers, []string{"u1"})
	first := dial(t, srv, "u1")
	defer first.Close()

	require.NoError(t, first.WriteJSON(models.ClientFrame{Op: models.OpSubscribe, Topic: TopicUsers}))
	var f models.ServerFrame
	require.NoError(t, first.ReadJSON(&f))
	assert.JSONEq(t, `["u1"]`, string(f.Data))

	loader.set(TopicUsers, []string{"u1", "u2"})
	second := dial(t, srv, "u2")
	defer second.Close()

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, first.ReadJSON(&f))
	assert.Equal(t, models.FrameSnapshot, f.Type)
	assert.JSONEq(t, `["u1","u2"]`, string(f.Data))
}

func TestSessionReconnectDuringOfflineWriteStaysOnline(t *testing.T) {
	store := &slowOffline{
		MemoryStore: realtime.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	srv, users, _ := serveWith(t, store)

	old := dial(t, srv, "u1")
	require.Eventually(t, func() bool {
		p, _ := store.Presence(context.Background())
		return p["u1"].Online()
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, old.UnderlyingConn().Close())

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("offline write never started")
	}
	fresh := dial(t, srv, "u1")
	defer fresh.Close()
	// Give the new socket time to reach its presence write.
	time.Sleep(50 * time.Millisecond)
	close(store.release)

	require.Eventually(t, func() bool {
		p, _ := store.Presence(context.Background())
		return users.seen("u1") && p["u1"].Online()
	}, 2*time.Second, 10*time.Millisecond)
	p, _ := store.Presence(context.Background())
	assert.True(t, p["u1"].Online())
}
