package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"realtime-chat/internal/models"
)

type listener struct {
	id int
	fn func(json.RawMessage, error)
}

// fakeSource delivers snapshots synchronously to whoever listens on a topic.
type fakeSource struct {
	mu        sync.Mutex
	next      int
	listeners map[string][]listener
	failOn    string
}

func newFakeSource() *fakeSource {
	return &fakeSource{listeners: map[string][]listener{}}
}

func (f *fakeSource) Listen(_ context.Context, topic string, fn func(json.RawMessage, error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if topic == f.failOn {
		return nil, errors.New("listen refused")
	}
	f.next++
	id := f.next
	f.listeners[topic] = append(f.listeners[topic], listener{id: id, fn: fn})
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := f.listeners[topic]
		for i, l := range list {
			if l.id == id {
				f.listeners[topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}, nil
}

func (f *fakeSource) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[topic])
}

func (f *fakeSource) fns(topic string) []func(json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]func(json.RawMessage, error), 0, len(f.listeners[topic]))
	for _, l := range f.listeners[topic] {
		out = append(out, l.fn)
	}
	return out
}

func (f *fakeSource) push(t *testing.T, topic string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f.pushRaw(topic, data)
}

func (f *fakeSource) pushRaw(topic string, data json.RawMessage) {
	for _, fn := range f.fns(topic) {
		fn(data, nil)
	}
}

func (f *fakeSource) fail(topic string, err error) {
	for _, fn := range f.fns(topic) {
		fn(nil, err)
	}
}

// fakeCommands records the writes a conversation issues.
type fakeCommands struct {
	mu      sync.Mutex
	reads   []string
	readErr error
	sendErr error
	sent    []string
	replies []string
}

func (f *fakeCommands) SendText(_ context.Context, chatID, text, replyTo string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return models.Message{}, f.sendErr
	}
	f.sent = append(f.sent, text)
	f.replies = append(f.replies, replyTo)
	return models.Message{ID: "new", ChatID: chatID, Text: text, Type: models.MessageTypeText}, nil
}

func (f *fakeCommands) MarkRead(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, messageID)
	return f.readErr
}

func (f *fakeCommands) readIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reads...)
}

// fakeTypingWriter records typing broadcasts in order.
type fakeTypingWriter struct {
	mu     sync.Mutex
	writes []bool
}

func (f *fakeTypingWriter) SetTyping(_ context.Context, _ string, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, typing)
	return nil
}

func (f *fakeTypingWriter) all() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes...)
}
