package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"realtime-chat/internal/logger"
)

func TestMemoryStorePresence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.SetPresence(ctx, "a", Online(now)))
	require.NoError(t, s.SetPresence(ctx, "b", Offline(now)))

	p, err := s.Presence(ctx)
	require.NoError(t, err)
	assert.True(t, p["a"].Online())
	assert.False(t, p["b"].Online())
	assert.False(t, p["missing"].Online())
}

func TestClearTypingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SetTyping(ctx, "c1", "a", time.Now()))
	require.NoError(t, s.ClearTyping(ctx, "c1", "a"))
	require.NoError(t, s.ClearTyping(ctx, "c1", "a"))
	require.NoError(t, s.ClearTyping(ctx, "never", "a"))

	room, err := s.Typing(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, room)
}

func TestSweepTypingRemovesStale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.SetTyping(ctx, "c1", "old", now.Add(-time.Minute)))
	require.NoError(t, s.SetTyping(ctx, "c1", "fresh", now))

	n, err := s.SweepTyping(ctx, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	room, _ := s.Typing(ctx, "c1")
	assert.Contains(t, room, "fresh")
	assert.NotContains(t, room, "old")
}

func TestWatchDeliversChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewMemoryStore()
	ch := s.Watch(ctx)

	require.NoError(t, s.SetTyping(context.Background(), "c9", "u", time.Now()))

	select {
	case c := <-ch:
		assert.Equal(t, Change{Kind: ChangeTyping, ChatID: "c9", UID: "u"}, c)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestSessionRunsHooksOnce(t *testing.T) {
	ctx := context.Background()
	s := NewSession()
	var order []int

	s.OnDisconnect(ctx, func(context.Context) { order = append(order, 1) })
	s.OnDisconnect(ctx, func(context.Context) { order = append(order, 2) })

	s.Disconnect(ctx)
	s.Disconnect(ctx)
	assert.Equal(t, []int{2, 1}, order)

	s.OnDisconnect(ctx, func(context.Context) { order = append(order, 3) })
	assert.Equal(t, []int{2, 1, 3}, order)
}

func TestMemoryStoreLogsDroppedChanges(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	prev := logger.Log
	logger.Log = zap.New(core)
	t.Cleanup(func() { logger.Log = prev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()
	changes := s.Watch(ctx)

	now := time.Now()
	for i := 0; i < cap(changes)+3; i++ {
		require.NoError(t, s.SetTyping(ctx, "c1", "u1", now))
	}

	assert.Len(t, changes, cap(changes))
	dropped := logs.FilterMessage("realtime_change_dropped").All()
	require.Len(t, dropped, 3)
	assert.Equal(t, "c1", dropped[0].ContextMap()["chat_id"])
	assert.Equal(t, ChangeTyping, dropped[0].ContextMap()["kind"])
}
