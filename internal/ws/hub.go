package ws

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/realtime"
)

const topicStripes = 64

// Hub tracks listener subscriptions per topic and pushes full snapshots.
//
// Loading a topic and queueing its frames happen under that topic's stripe
// lock, so frames for one topic are queued in load order and a subscriber
// registered before a write always receives a snapshot taken after it.
// Presence transitions of one uid are serialized the same way by lockUser.
type Hub struct {
	loader  Loader
	mu      sync.RWMutex
	topics  map[string]map[*Client]bool
	online  map[string]int
	stripes [topicStripes]sync.Mutex
	users   [topicStripes]sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(loader Loader) *Hub {
	return &Hub{
		loader: loader,
		topics: make(map[string]map[*Client]bool),
		online: make(map[string]int),
	}
}

// Register counts a connection for its uid and reports whether it is the first one.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online[c.Identity.UID]++
	return h.online[c.Identity.UID] == 1
}

// Unregister drops every subscription of c and reports whether it was the
// last connection of its uid.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range c.topics {
		h.removeLocked(topic, c)
	}
	c.topics = map[string]bool{}

	uid := c.Identity.UID
	if h.online[uid] > 0 {
		h.online[uid]--
	}
	if h.online[uid] == 0 {
		delete(h.online, uid)
		return true
	}
	return false
}

// Subscribe authorizes c for topic, records the subscription and sends the
// current snapshot right away.
func (h *Hub) Subscribe(ctx context.Context, c *Client, topic string) error {
	if err := h.loader.Authorize(ctx, c.Identity, topic); err != nil {
		return err
	}

	lock := h.stripe(topic)
	lock.Lock()
	defer lock.Unlock()

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Client]bool)
		h.topics[topic] = subs
	}
	subs[c] = true
	c.topics[topic] = true
	h.mu.Unlock()

	data, err := h.loader.Load(ctx, topic)
	if err == nil {
		var frame []byte
		if frame, err = snapshotFrame(topic, data); err == nil {
			if c.enqueue(frame) {
				observability.IncSnapshotSent(TopicKind(topic))
			}
			return nil
		}
	}
	h.Unsubscribe(c, topic)
	return err
}

// Unsubscribe removes c from topic. Unknown subscriptions are ignored.
func (h *Hub) Unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(topic, c)
	delete(c.topics, topic)
}

// Evict removes every subscription of uid to topic, e.g. after leaving a chat.
func (h *Hub) Evict(topic, uid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.topics[topic] {
		if c.Identity.UID == uid {
			h.removeLocked(topic, c)
			delete(c.topics, topic)
		}
	}
}

func (h *Hub) removeLocked(topic string, c *Client) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Subscribers returns the number of listeners on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Notify reloads each distinct topic once and sends the snapshot to every
// subscriber. Topics without listeners are skipped.
func (h *Hub) Notify(ctx context.Context, topics ...string) {
	seen := make(map[string]bool, len(topics))
	for _, topic := range topics {
		if seen[topic] {
			continue
		}
		seen[topic] = true
		h.notifyTopic(ctx, topic)
	}
}

func (h *Hub) notifyTopic(ctx context.Context, topic string) {
	lock := h.stripe(topic)
	lock.Lock()
	defer lock.Unlock()

	subs := h.subscribers(topic)
	if len(subs) == 0 {
		return
	}

	var frame []byte
	kind := TopicKind(topic)
	start := time.Now()
	data, err := h.loader.Load(ctx, topic)
	observability.ObserveSnapshotLoad(kind, time.Since(start), err)
	if err == nil {
		frame, err = snapshotFrame(topic, data)
	}
	if err != nil {
		logger.Log.Warn("snapshot_load_failed", zap.String("topic", topic), zap.Error(err))
		frame = errorFrame(topic, err)
	}

	for _, c := range subs {
		if !c.enqueue(frame) {
			logger.Log.Warn("listener_queue_full", zap.String("conn_id", c.Info.ConnID), zap.String("topic", topic))
			observability.IncSnapshotDropped(kind)
			continue
		}
		observability.IncSnapshotSent(kind)
	}
}

// stripe returns the lock serializing loads and fan-out for topic.
func (h *Hub) stripe(topic string) *sync.Mutex {
	return &h.stripes[stripeIndex(topic)]
}

// lockUser holds the presence lock of uid until the returned func is called.
// Register or Unregister and the presence write they gate run under it, so a
// reconnect cannot be overwritten by the offline write of the previous socket.
func (h *Hub) lockUser(uid string) func() {
	mu := &h.users[stripeIndex(uid)]
	mu.Lock()
	return mu.Unlock
}

func stripeIndex(key string) uint32 {
	f := fnv.New32a()
	_, _ = f.Write([]byte(key))
	return f.Sum32() % topicStripes
}

// Run turns realtime store changes into notifications until ctx is done.
func (h *Hub) Run(ctx context.Context, changes <-chan realtime.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			switch ch.Kind {
			case realtime.ChangePresence:
				h.Notify(ctx, TopicPresence)
			case realtime.ChangeTyping:
				h.Notify(ctx, TypingTopic(ch.ChatID))
			}
		}
	}
}

// OnlineCount is the number of uids with at least one live connection on this node.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.online)
}

func (h *Hub) subscribers(topic string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		out = append(out, c)
	}
	return out
}

// Allowed reports whether id may read topic. Used by the typing op.
func (h *Hub) Allowed(ctx context.Context, id auth.Identity, topic string) bool {
	return h.loader.Authorize(ctx, id, topic) == nil
}

func snapshotFrame(topic string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.ServerFrame{Type: models.FrameSnapshot, Topic: topic, Data: raw})
}

func errorFrame(topic string, err error) []byte {
	b, _ := json.Marshal(models.ServerFrame{Type: models.FrameError, Topic: topic, Error: err.Error()})
	return b
}
