package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
)

const (
	DefaultTypingDelay = 2 * time.Second

	// The server sweeps typing records older than 30s, so a long burst of
	// keystrokes re-sends the flag before that.
	typingRefresh = 10 * time.Second
)

// Typing broadcasts the local user's typing flag for one chat. Keystroke sets
// it and re-arms a debounce timer; the timer or Stop removes it.
type Typing struct {
	chatID string
	w      TypingWriter
	delay  time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	active bool
	sentAt time.Time
	gen    int
}

func NewTyping(chatID string, w TypingWriter, delay time.Duration) *Typing {
	if delay <= 0 {
		delay = DefaultTypingDelay
	}
	return &Typing{chatID: chatID, w: w, delay: delay}
}

// Keystroke marks the user as typing and pushes the clear back by the delay.
func (t *Typing) Keystroke(ctx context.Context) {
	t.mu.Lock()
	send := !t.active || time.Since(t.sentAt) >= typingRefresh
	t.active = true
	if send {
		t.sentAt = time.Now()
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.delay, func() { t.expire(context.WithoutCancel(ctx), gen) })
	t.mu.Unlock()

	if send {
		t.write(ctx, true)
	}
}

// Stop clears the flag now. Calling it when nothing is set does nothing.
func (t *Typing) Stop(ctx context.Context) {
	t.mu.Lock()
	t.clear(ctx)
}

// expire runs from the debounce timer. A timer re-armed since it was scheduled wins.
func (t *Typing) expire(ctx context.Context, gen int) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.clear(ctx)
}

// clear is called with t.mu held and releases it.
func (t *Typing) clear(ctx context.Context) {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	wasActive := t.active
	t.active = false
	t.mu.Unlock()

	if wasActive {
		t.write(ctx, false)
	}
}

// Active reports whether the flag is currently set.
func (t *Typing) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Typing) write(ctx context.Context, typing bool) {
	if err := t.w.SetTyping(ctx, t.chatID, typing); err != nil {
		logger.Log.Debug("typing_broadcast_failed", zap.String("chat_id", t.chatID), zap.Bool("typing", typing), zap.Error(err))
	}
}

// TypingIndicator watches who else is typing in a chat.
type TypingIndicator struct {
	chatID string
	self   string
	src    Source

	mu     sync.RWMutex
	typers []string
	stop   func()
}

func NewTypingIndicator(chatID, self string, src Source) *TypingIndicator {
	return &TypingIndicator{chatID: chatID, self: self, src: src}
}

func (ti *TypingIndicator) Start(ctx context.Context) error {
	stop, err := ti.src.Listen(ctx, typingTopic(ti.chatID), ti.apply)
	if err != nil {
		return fmt.Errorf("listen typing: %w", err)
	}
	ti.mu.Lock()
	ti.stop = stop
	ti.mu.Unlock()
	return nil
}

func (ti *TypingIndicator) Stop() {
	ti.mu.Lock()
	stop := ti.stop
	ti.stop = nil
	ti.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (ti *TypingIndicator) apply(data json.RawMessage, err error) {
	if err != nil {
		logger.Log.Debug("typing_listener_error", zap.String("chat_id", ti.chatID), zap.Error(err))
		return
	}
	records := map[string]models.Typing{}
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Log.Debug("typing_snapshot_invalid", zap.String("chat_id", ti.chatID), zap.Error(err))
		return
	}
	var typers []string
	for uid, rec := range records {
		if uid != ti.self && rec.IsTyping {
			typers = append(typers, uid)
		}
	}
	sort.Strings(typers)

	ti.mu.Lock()
	ti.typers = typers
	ti.mu.Unlock()
}

// Typers returns the other users typing, sorted by uid.
func (ti *TypingIndicator) Typers() []string {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return append([]string(nil), ti.typers...)
}

// IndicatorText renders the typing line. name resolves a uid to a display name.
func IndicatorText(typers []string, name func(uid string) string) string {
	switch len(typers) {
	case 0:
		return ""
	case 1:
		n := name(typers[0])
		if n == "" {
			n = "Someone"
		}
		return n + " is typing..."
	}
	return "Several people are typing..."
}
