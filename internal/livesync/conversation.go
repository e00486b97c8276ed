package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-chat/internal/chatops"
	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
)

// Update describes what the view should do after a snapshot was applied.
type Update struct {
	Messages         []models.Message
	ScrollToBottom   bool
	NewMessagesBadge bool
}

// ConversationOptions configures a Conversation. Every field is optional.
type ConversationOptions struct {
	Threshold float64
	// OnUpdate runs after each applied snapshot.
	OnUpdate func(Update)
	// OnIncoming runs once for each newly arrived message sent by someone else.
	OnIncoming func(models.Message)
}

// Conversation is the message window of one open chat.
type Conversation struct {
	chatID string
	uid    string
	src    Source
	cmds   Commands
	opts   ConversationOptions

	mu       sync.Mutex
	ctx      context.Context
	messages []models.Message
	loaded   bool
	viewport Viewport
	badge    bool
	compose  string
	replyTo  string
	stop     func()

	// processed holds every message id a read receipt was issued for. It
	// lives as long as the Conversation and is never persisted.
	processed map[string]struct{}
	reads     sync.WaitGroup
}

func NewConversation(chatID, uid string, src Source, cmds Commands, opts ConversationOptions) *Conversation {
	return &Conversation{
		chatID:    chatID,
		uid:       uid,
		src:       src,
		cmds:      cmds,
		opts:      opts,
		viewport:  Viewport{Threshold: opts.Threshold},
		processed: map[string]struct{}{},
	}
}

func (c *Conversation) ChatID() string { return c.chatID }

// Start subscribes the recent message window.
func (c *Conversation) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = context.WithoutCancel(ctx)
	c.mu.Unlock()

	stop, err := c.src.Listen(ctx, messagesTopic(c.chatID), c.apply)
	if err != nil {
		return fmt.Errorf("listen messages: %w", err)
	}
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()
	return nil
}

// Stop detaches the listener. Writes already issued still complete.
func (c *Conversation) Stop() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Wait blocks until every read receipt issued so far has finished.
func (c *Conversation) Wait() {
	c.reads.Wait()
}

func (c *Conversation) apply(data json.RawMessage, err error) {
	if err != nil {
		logger.Log.Warn("conversation_listener_error", zap.String("chat_id", c.chatID), zap.Error(err))
		return
	}
	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		logger.Log.Warn("conversation_snapshot_invalid", zap.String("chat_id", c.chatID), zap.Error(err))
		return
	}

	c.mu.Lock()
	// Scroll position is judged on the window as it was before this snapshot.
	stick := !c.loaded || c.viewport.AtBottom()
	first := !c.loaded
	hadMessages := len(c.messages) > 0
	fresh := newSince(c.messages, msgs)
	c.messages = msgs
	c.loaded = true

	// A full window slides rather than grows, so growth is judged by ids.
	grew := !first && len(fresh) > 0
	update := Update{Messages: cloneMessages(msgs)}
	if stick {
		update.ScrollToBottom = true
		c.badge = false
	} else if grew {
		c.badge = true
	}
	update.NewMessagesBadge = c.badge

	var incoming []models.Message
	if grew && hadMessages {
		for _, m := range fresh {
			if m.SenderID != c.uid {
				incoming = append(incoming, m)
			}
		}
	}

	unread := c.unreadLocked(msgs)
	if len(unread) > 0 {
		c.reads.Add(1)
	}
	ctx := c.ctx
	c.mu.Unlock()

	if len(unread) > 0 {
		c.markRead(ctx, unread)
	}
	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(update)
	}
	if c.opts.OnIncoming != nil {
		for _, m := range incoming {
			c.opts.OnIncoming(m)
		}
	}
}

// newSince returns the messages of next that sort after the newest message
// of prev and were not in prev. Edits and deletions inside the window, and
// older messages scrolling out of it, yield nothing.
func newSince(prev, next []models.Message) []models.Message {
	seen := make(map[string]struct{}, len(prev))
	for _, m := range prev {
		seen[m.ID] = struct{}{}
	}
	var fresh []models.Message
	for i := len(next) - 1; i >= 0; i-- {
		if _, ok := seen[next[i].ID]; ok {
			break
		}
		fresh = append(fresh, next[i])
	}
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	return fresh
}

// unreadLocked picks the messages that need a read receipt and records them
// as processed, so a snapshot re-delivered by that very write issues nothing.
func (c *Conversation) unreadLocked(msgs []models.Message) []string {
	var ids []string
	for _, m := range msgs {
		if m.SenderID == c.uid || chatops.Contains(m.ReadBy, c.uid) {
			continue
		}
		if _, done := c.processed[m.ID]; done {
			continue
		}
		c.processed[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	return ids
}

// markRead issues the receipts off the listener path. Failures are dropped
// and not retried. The caller has already added to c.reads.
func (c *Conversation) markRead(ctx context.Context, ids []string) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer c.reads.Done()
		for _, id := range ids {
			if err := c.cmds.MarkRead(ctx, c.chatID, id); err != nil {
				logger.Log.Debug("read_receipt_failed", zap.String("chat_id", c.chatID), zap.String("message_id", id), zap.Error(err))
			}
		}
	}()
}

// Messages returns a copy of the current window, oldest first.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.messages)
}

// Loaded reports whether the first snapshot has arrived.
func (c *Conversation) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// SetViewport records the scroll state reported by the UI.
func (c *Conversation) SetViewport(v Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.Threshold <= 0 {
		v.Threshold = c.opts.Threshold
	}
	c.viewport = v
	if v.AtBottom() {
		c.badge = false
	}
}

// JumpToBottom is the action behind the new-messages badge.
func (c *Conversation) JumpToBottom() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = c.viewport.Bottom()
	c.badge = false
	return c.viewport
}

func (c *Conversation) BadgeVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.badge
}

func (c *Conversation) SetCompose(text string) {
	c.mu.Lock()
	c.compose = text
	c.mu.Unlock()
}

func (c *Conversation) Compose() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compose
}

// ReplyTo quotes messageID in the next send. An empty id cancels the reply.
func (c *Conversation) ReplyTo(messageID string) {
	c.mu.Lock()
	c.replyTo = messageID
	c.mu.Unlock()
}

// Send writes the compose text. The compose text and reply target are
// cleared only once the server accepted the message, so a failure leaves
// them in place for another try.
func (c *Conversation) Send(ctx context.Context) (models.Message, error) {
	c.mu.Lock()
	text := strings.TrimSpace(c.compose)
	replyTo := c.replyTo
	c.mu.Unlock()
	if text == "" {
		return models.Message{}, ErrEmptyCompose
	}

	msg, err := c.cmds.SendText(ctx, c.chatID, text, replyTo)
	if err != nil {
		return models.Message{}, err
	}

	c.mu.Lock()
	c.compose = ""
	c.replyTo = ""
	c.mu.Unlock()
	return msg, nil
}

// Search filters the current window by text.
func (c *Conversation) Search(q string) []models.Message {
	return chatops.Search(c.Messages(), q)
}

// DayGroup is a run of messages under one date separator.
type DayGroup struct {
	Label    string
	Messages []models.Message
}

// GroupByDay splits msgs into runs that share a DateLabel.
func GroupByDay(msgs []models.Message, now time.Time) []DayGroup {
	var out []DayGroup
	for _, m := range msgs {
		label := DateLabel(now, m.CreatedAt)
		if n := len(out); n > 0 && out[n-1].Label == label {
			out[n-1].Messages = append(out[n-1].Messages, m)
			continue
		}
		out = append(out, DayGroup{Label: label, Messages: []models.Message{m}})
	}
	return out
}

// DateLabel names the calendar day of t relative to now, in now's location.
func DateLabel(now, t time.Time) string {
	t = t.In(now.Location())
	if sameDay(t, now) {
		return "Today"
	}
	if sameDay(t, now.AddDate(0, 0, -1)) {
		return "Yesterday"
	}
	if t.Year() == now.Year() {
		return t.Format("2 Jan")
	}
	return t.Format("2 Jan 2006")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func cloneMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}
