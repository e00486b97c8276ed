package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
)

// Presence mirrors the server presence map. The server writes the local
// user's online record at connect and the offline record on disconnect, so the
// client only reads.
type Presence struct {
	src Source

	mu     sync.RWMutex
	states map[string]models.Presence
	stop   func()
}

func NewPresence(src Source) *Presence {
	return &Presence{src: src, states: map[string]models.Presence{}}
}

func (p *Presence) Start(ctx context.Context) error {
	stop, err := p.src.Listen(ctx, topicPresence, p.apply)
	if err != nil {
		return fmt.Errorf("listen presence: %w", err)
	}
	p.mu.Lock()
	p.stop = stop
	p.mu.Unlock()
	return nil
}

func (p *Presence) Stop() {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (p *Presence) apply(data json.RawMessage, err error) {
	if err != nil {
		logger.Log.Warn("presence_listener_error", zap.Error(err))
		return
	}
	states := map[string]models.Presence{}
	if err := json.Unmarshal(data, &states); err != nil {
		logger.Log.Warn("presence_snapshot_invalid", zap.Error(err))
		return
	}
	p.mu.Lock()
	p.states = states
	p.mu.Unlock()
}

// IsOnline reports whether uid currently has an online record.
func (p *Presence) IsOnline(uid string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.states[uid].Online()
}

func (p *Presence) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, s := range p.states {
		if s.Online() {
			n++
		}
	}
	return n
}

// StatusLine is the subtitle under a direct chat's title.
func (p *Presence) StatusLine(u models.User, now time.Time) string {
	if p.IsOnline(u.UID) {
		return "Online"
	}
	if u.LastSeen == nil {
		return ""
	}
	return "Last seen " + LastSeenText(now, *u.LastSeen)
}

// LastSeenText renders the age of lastSeen: minutes under an hour, hours under
// a day, the date otherwise.
func LastSeenText(now, lastSeen time.Time) string {
	d := now.Sub(lastSeen)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	}
	return lastSeen.In(now.Location()).Format("2 Jan 2006")
}
