package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
)

const (
	fallbackName  = "User"
	fallbackGroup = "Group"
)

// Roster holds the chats of one user and every user profile. Each snapshot
// replaces the local copy as a whole. A failed delivery keeps the last good copy.
type Roster struct {
	uid string
	src Source

	mu       sync.RWMutex
	chats    []models.Chat
	users    map[string]models.User
	stops    []func()
	onChange func()
}

// NewRoster creates an idle roster for uid. Nothing is subscribed until Start.
func NewRoster(uid string, src Source) *Roster {
	return &Roster{uid: uid, src: src, users: map[string]models.User{}}
}

// OnChange registers fn to run after every applied snapshot.
func (r *Roster) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Start subscribes the chat list and the user directory.
func (r *Roster) Start(ctx context.Context) error {
	stopChats, err := r.src.Listen(ctx, chatsTopic(r.uid), r.applyChats)
	if err != nil {
		return fmt.Errorf("listen chats: %w", err)
	}
	stopUsers, err := r.src.Listen(ctx, topicUsers, r.applyUsers)
	if err != nil {
		stopChats()
		return fmt.Errorf("listen users: %w", err)
	}
	r.mu.Lock()
	r.stops = append(r.stops, stopChats, stopUsers)
	r.mu.Unlock()
	return nil
}

// Stop detaches both listeners. The last snapshot stays readable.
func (r *Roster) Stop() {
	r.mu.Lock()
	stops := r.stops
	r.stops = nil
	r.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

func (r *Roster) applyChats(data json.RawMessage, err error) {
	if err != nil {
		logger.Log.Warn("roster_listener_error", zap.String("topic", chatsTopic(r.uid)), zap.Error(err))
		return
	}
	var chats []models.Chat
	if err := json.Unmarshal(data, &chats); err != nil {
		logger.Log.Warn("roster_snapshot_invalid", zap.String("topic", chatsTopic(r.uid)), zap.Error(err))
		return
	}
	chatops.SortChats(chats)

	r.mu.Lock()
	r.chats = chats
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (r *Roster) applyUsers(data json.RawMessage, err error) {
	if err != nil {
		logger.Log.Warn("roster_listener_error", zap.String("topic", topicUsers), zap.Error(err))
		return
	}
	var list []models.User
	if err := json.Unmarshal(data, &list); err != nil {
		logger.Log.Warn("roster_snapshot_invalid", zap.String("topic", topicUsers), zap.Error(err))
		return
	}
	users := make(map[string]models.User, len(list))
	for _, u := range list {
		users[u.UID] = u
	}

	r.mu.Lock()
	r.users = users
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Chats returns a copy of the chat list, newest activity first.
func (r *Roster) Chats() []models.Chat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Chat, len(r.chats))
	copy(out, r.chats)
	return out
}

// Split returns the main list and the archived list.
func (r *Roster) Split() (active, archived []models.Chat) {
	return chatops.SplitArchived(r.Chats(), r.uid)
}

// Users returns a copy of the user directory.
func (r *Roster) Users() map[string]models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.User, len(r.users))
	for k, v := range r.users {
		out[k] = v
	}
	return out
}

func (r *Roster) User(uid string) (models.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[uid]
	return u, ok
}

func (r *Roster) Chat(chatID string) (models.Chat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.chats {
		if c.ID == chatID {
			return c, true
		}
	}
	return models.Chat{}, false
}

// Partner resolves the other member of a direct chat.
func (r *Roster) Partner(chat models.Chat) (models.User, bool) {
	if chat.Type != models.ChatTypeDirect {
		return models.User{}, false
	}
	return r.User(chat.Partner(r.uid))
}

// DisplayName resolves how uid is shown inside chatID: the chat nickname if
// set, then the profile name, then a placeholder.
func (r *Roster) DisplayName(chatID, uid string) string {
	if chat, ok := r.Chat(chatID); ok {
		if nick := chat.Nicknames[uid]; nick != "" {
			return nick
		}
	}
	if u, ok := r.User(uid); ok && u.Name != "" {
		return u.Name
	}
	return fallbackName
}

// Title is the heading of a chat in the list.
func (r *Roster) Title(chat models.Chat) string {
	if chat.Type == models.ChatTypeGroup {
		if chat.GroupName != "" {
			return chat.GroupName
		}
		return fallbackGroup
	}
	return r.DisplayName(chat.ID, chat.Partner(r.uid))
}
