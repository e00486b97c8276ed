package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/models"
	"realtime-chat/internal/realtime"
)

type fakeLoader struct {
	mu    sync.Mutex
	data  map[string]any
	loads map[string]int
	err   error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{data: map[string]any{}, loads: map[string]int{}}
}

func (f *fakeLoader) Authorize(_ context.Context, id auth.Identity, topic string) error {
	if topic == TopicAppeals && !id.Admin {
		return ErrForbidden
	}
	return nil
}

func (f *fakeLoader) Load(_ context.Context, topic string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[topic]++
	if f.err != nil {
		return nil, f.err
	}
	return f.data[topic], nil
}

func (f *fakeLoader) set(topic string, v any) {
	f.mu.Lock()
	f.data[topic] = v
	f.mu.Unlock()
}

func readFrame(t *testing.T, c *Client) models.ServerFrame {
	t.Helper()
	select {
	case b := <-c.Send():
		var f models.ServerFrame
		require.NoError(t, json.Unmarshal(b, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame")
		return models.ServerFrame{}
	}
}

func TestSubscribeSendsCurrentSnapshot(t *testing.T) {
	loader := newFakeLoader()
	loader.set(TopicUsers, []string{"a", "b"})
	hub := NewHub(loader)
	c := NewClient(auth.Identity{UID: "a"}, ConnInfo{})

	require.NoError(t, hub.Subscribe(context.Background(), c, TopicUsers))

	f := readFrame(t, c)
	assert.Equal(t, models.FrameSnapshot, f.Type)
	assert.Equal(t, TopicUsers, f.Topic)
	assert.JSONEq(t, `["a","b"]`, string(f.Data))
	assert.Equal(t, 1, hub.Subscribers(TopicUsers))
}

func TestSubscribeForbidden(t *testing.T) {
	hub := NewHub(newFakeLoader())
	c := NewClient(auth.Identity{UID: "a"}, ConnInfo{})

	assert.ErrorIs(t, hub.Subscribe(context.Background(), c, TopicAppeals), ErrForbidden)
	assert.Equal(t, 0, hub.Subscribers(TopicAppeals))
}

func TestNotifyDedupesAndReplacesWholesale(t *testing.T) {
	loader := newFakeLoader()
	hub := NewHub(loader)
	a := NewClient(auth.Identity{UID: "a"}, ConnInfo{})
	b := NewClient(auth.Identity{UID: "b"}, ConnInfo{})
	topic := MessagesTopic("c1")

	require.NoError(t, hub.Subscribe(context.Background(), a, topic))
	require.NoError(t, hub.Subscribe(context.Background(), b, topic))
	readFrame(t, a)
	readFrame(t, b)

	loader.set(topic, []string{"m1", "m2"})
	hub.Notify(context.Background(), topic, topic, MessagesTopic("nobody"))

	assert.JSONEq(t, `["m1","m2"]`, string(readFrame(t, a).Data))
	assert.JSONEq(t, `["m1","m2"]`, string(readFrame(t, b).Data))
	assert.Equal(t, 3, loader.loads[topic], "two subscribes and one notify")
	assert.Zero(t, loader.loads[MessagesTopic("nobody")])
}

func TestNotifySendsErrorFrameOnLoadFailure(t *testing.T) {
	loader := newFakeLoader()
	hub := NewHub(loader)
	c := NewClient(auth.Identity{UID: "a"}, ConnInfo{})
	require.NoError(t, hub.Subscribe(context.Background(), c, TopicPresence))
	readFrame(t, c)

	loader.err = errors.New("db down")
	hub.Notify(context.Background(), TopicPresence)

	f := readFrame(t, c)
	assert.Equal(t, models.FrameError, f.Type)
	assert.Equal(t, "db down", f.Error)
}

func TestRegisterCountsConnectionsPerUser(t *testing.T) {
	hub := NewHub(newFakeLoader())
	c1 := NewClient(auth.Identity{UID: "a"}, ConnInfo{})
	c2 := NewClient(auth.Identity{UID: "a"}, ConnInfo{})

	assert.True(t, hub.Register(c1))
	assert.False(t, hub.Register(c2))
	require.NoError(t, hub.Subscribe(context.Background(), c1, TopicUsers))
	assert.Equal(t, 1, hub.OnlineCount())

	assert.False(t, hub.Unregister(c1))
	assert.Equal(t, 0, hub.Subscribers(TopicUsers))
	assert.True(t, hub.Unregister(c2))
	assert.Equal(t, 0, hub.OnlineCount())
}

func TestEvictDropsOnlyThatUser(t *testing.T) {
	hub := NewHub(newFakeLoader())
	a := NewClient(auth.Identity{UID: "a"}, ConnInfo{})
	b := NewClient(auth.Identity{UID: "b"}, ConnInfo{})
	topic := MessagesTopic("c1")
	require.NoError(t, hub.Subscribe(context.Background(), a, topic))
	require.NoError(t, hub.Subscribe(context.Background(), b, topic))

	hub.Evict(topic, "a")
	assert.Equal(t, 1, hub.Subscribers(topic))
}

func TestRunForwardsRealtimeChanges(t *testing.T) {
	loader := newFakeLoader()
	hub := NewHub(loader)
	store := realtime.NewMemoryStore()
	c := NewClient(auth.Identity{UID: "a"}, ConnInfo{})
	require.NoError(t, hub.Subscribe(context.Background(), c, TypingTopic("c1")))
	readFrame(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, store.Watch(ctx))

	loader.set(TypingTopic("c1"), map[string]bool{"b": true})
	require.NoError(t, store.SetTyping(context.Background(), "c1", "b", time.Now()))

	f := readFrame(t, c)
	assert.Equal(t, TypingTopic("c1"), f.Topic)
	assert.JSONEq(t, `{"b":true}`, string(f.Data))
}

func TestChatTopicsAndKinds(t *testing.T) {
	chat := models.Chat{Participants: []string{"a", "b"}}
	assert.Equal(t, []string{"chats:a", "chats:b", "chats:c", TopicAdminChats}, ChatTopics(chat, "c"))

	assert.Equal(t, "messages", TopicKind(MessagesTopic("x")))
	assert.Equal(t, TopicAdminChats, TopicKind(TopicAdminChats))

	_, _, err := parseTopic("messages:")
	assert.ErrorIs(t, err, ErrUnknownTopic)
	_, _, err = parseTopic("bogus")
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := NewClient(auth.Identity{UID: "a"}, ConnInfo{})
	c.Close()
	c.Close()
	assert.False(t, c.enqueue([]byte("x")))
}

// gateLoader holds the first load of a topic until release is closed. The
// held load returns the data as it was when the load began.
type gateLoader struct {
	*fakeLoader
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gateLoader) Load(ctx context.Context, topic string) (any, error) {
	held := false
	g.once.Do(func() { held = true })
	if !held {
		return g.fakeLoader.Load(ctx, topic)
	}
	data, err := g.fakeLoader.Load(ctx, topic)
	close(g.started)
	<-g.release
	return data, err
}

func TestSubscribeSeesWriteDuringInitialLoad(t *testing.T) {
	topic := MessagesTopic("c1")
	loader := &gateLoader{fakeLoader: newFakeLoader(), started: make(chan struct{}), release: make(chan struct{})}
	loader.set(topic, []string{"m1"})
	hub := NewHub(loader)
	c := NewClient(auth.Identity{UID: "a"}, ConnInfo{})
	ctx := context.Background()

	subscribed := make(chan error, 1)
	go func() { subscribed <- hub.Subscribe(ctx, c, topic) }()
	<-loader.started

	// A write lands while the initial snapshot is still loading.
	loader.set(topic, []string{"m1", "m2"})
	notified := make(chan struct{})
	go func() {
		hub.Notify(ctx, topic)
		close(notified)
	}()
	time.Sleep(20 * time.Millisecond)
	close(loader.release)

	require.NoError(t, <-subscribed)
	<-notified

	assert.JSONEq(t, `["m1"]`, string(readFrame(t, c).Data))
	assert.JSONEq(t, `["m1","m2"]`, string(readFrame(t, c).Data))
}

func TestNotifyFramesFollowLoadOrder(t *testing.T) {
	topic := MessagesTopic("c1")
	loader := newFakeLoader()
	loader.set(topic, []int{0})
	hub := NewHub(loader)
	c := NewClient(auth.Identity{UID: "a"}, ConnInfo{})
	ctx := context.Background()
	require.NoError(t, hub.Subscribe(ctx, c, topic))
	readFrame(t, c)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loader.set(topic, []int{i})
			hub.Notify(ctx, topic)
		}(i)
	}
	wg.Wait()

	// Whatever the interleaving, the last frame queued reflects the data as
	// it stands after every write.
	var last models.ServerFrame
	for i := 0; i < 20; i++ {
		last = readFrame(t, c)
	}
	loader.mu.Lock()
	want, _ := json.Marshal(loader.data[topic])
	loader.mu.Unlock()
	assert.JSONEq(t, string(want), string(last.Data))
}

func TestSubscribeLoadFailureLeavesNoSubscription(t *testing.T) {
	loader := newFakeLoader()
	loader.err = errors.New("db down")
	hub := NewHub(loader)
	c := NewClient(auth.Identity{UID: "a"}, ConnInfo{})

	require.Error(t, hub.Subscribe(context.Background(), c, TopicUsers))
	assert.Equal(t, 0, hub.Subscribers(TopicUsers))
}
