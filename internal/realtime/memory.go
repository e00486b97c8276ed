package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
)

// MemoryStore keeps everything in process. Used by tests and single-node dev runs.
type MemoryStore struct {
	mu       sync.RWMutex
	presence map[string]models.Presence
	typing   map[string]map[string]models.Typing
	watchers map[chan Change]struct{}
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		presence: make(map[string]models.Presence),
		typing:   make(map[string]map[string]models.Typing),
		watchers: make(map[chan Change]struct{}),
	}
}

func (m *MemoryStore) SetPresence(_ context.Context, uid string, p models.Presence) error {
	m.mu.Lock()
	m.presence[uid] = p
	m.mu.Unlock()
	m.emit(Change{Kind: ChangePresence, UID: uid})
	return nil
}

func (m *MemoryStore) Presence(_ context.Context) (map[string]models.Presence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.Presence, len(m.presence))
	for k, v := range m.presence {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SetTyping(_ context.Context, chatID, uid string, at time.Time) error {
	m.mu.Lock()
	room, ok := m.typing[chatID]
	if !ok {
		room = make(map[string]models.Typing)
		m.typing[chatID] = room
	}
	room[uid] = models.Typing{IsTyping: true, At: at}
	m.mu.Unlock()
	m.emit(Change{Kind: ChangeTyping, ChatID: chatID, UID: uid})
	return nil
}

func (m *MemoryStore) ClearTyping(_ context.Context, chatID, uid string) error {
	m.mu.Lock()
	room, ok := m.typing[chatID]
	_, present := room[uid]
	if ok && present {
		delete(room, uid)
		if len(room) == 0 {
			delete(m.typing, chatID)
		}
	}
	m.mu.Unlock()
	if present {
		m.emit(Change{Kind: ChangeTyping, ChatID: chatID, UID: uid})
	}
	return nil
}

func (m *MemoryStore) Typing(_ context.Context, chatID string) (map[string]models.Typing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.Typing, len(m.typing[chatID]))
	for k, v := range m.typing[chatID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SweepTyping(_ context.Context, cutoff time.Time) (int, error) {
	var removed []Change
	m.mu.Lock()
	for chatID, room := range m.typing {
		for uid, t := range room {
			if t.At.Before(cutoff) {
				delete(room, uid)
				removed = append(removed, Change{Kind: ChangeTyping, ChatID: chatID, UID: uid})
			}
		}
		if len(room) == 0 {
			delete(m.typing, chatID)
		}
	}
	m.mu.Unlock()
	for _, c := range removed {
		m.emit(c)
	}
	return len(removed), nil
}

func (m *MemoryStore) Watch(ctx context.Context) <-chan Change {
	ch := make(chan Change, 64)
	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

func (m *MemoryStore) Close() error { return nil }

// emit never blocks; a slow watcher misses changes, not the writer.
func (m *MemoryStore) emit(c Change) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.watchers {
		select {
		case ch <- c:
		default:
			logger.Log.Warn("realtime_change_dropped",
				zap.String("kind", c.Kind),
				zap.String("chat_id", c.ChatID),
				zap.String("uid", c.UID))
		}
	}
}
