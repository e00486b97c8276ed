package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
)

var (
	ErrNotConnected = errors.New("listener not connected")
	ErrDisconnected = errors.New("listener disconnected")
)

type callback struct {
	id int
	fn func(json.RawMessage, error)
}

// listener multiplexes topic subscriptions over one websocket.
type listener struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	// deliverMu orders callback invocations: the read loop holds it while it
	// dispatches a frame, Listen while it replays the cached snapshot.
	// Callbacks must not call Listen.
	deliverMu sync.Mutex

	mu     sync.Mutex
	next   int
	topics map[string][]callback
	last   map[string]json.RawMessage
	closed bool
	done   chan struct{}
}

// Connect opens the listener websocket. The server marks the caller online
// for as long as it stays open.
func (c *Client) Connect(ctx context.Context) error {
	wsURL, err := websocketURL(c.baseURL)
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, map[string][]string{"Authorization": {"Bearer " + c.token}})
	if err != nil {
		return fmt.Errorf("dial listener: %w", err)
	}
	l := &listener{
		conn:   conn,
		topics: map[string][]callback{},
		last:   map[string]json.RawMessage{},
		done:   make(chan struct{}),
	}
	c.listener = l
	go l.readLoop()
	return nil
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Done is closed when the listener connection ends.
func (c *Client) Done() <-chan struct{} {
	if c.listener == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.listener.done
}

// Listen subscribes fn to topic. The first listener of a topic sends the
// subscribe frame; the last stop sends unsubscribe. A listener joining a
// topic that already has a snapshot receives it right away.
func (c *Client) Listen(_ context.Context, topic string, fn func(json.RawMessage, error)) (func(), error) {
	l := c.listener
	if l == nil {
		return nil, ErrNotConnected
	}
	l.deliverMu.Lock()
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.deliverMu.Unlock()
		return nil, ErrDisconnected
	}
	l.next++
	id := l.next
	first := len(l.topics[topic]) == 0
	l.topics[topic] = append(l.topics[topic], callback{id: id, fn: fn})
	cached, replay := l.last[topic]
	l.mu.Unlock()
	if replay {
		fn(cached, nil)
	}
	l.deliverMu.Unlock()

	if first {
		if err := l.write(models.ClientFrame{Op: models.OpSubscribe, Topic: topic}); err != nil {
			l.remove(topic, id)
			return nil, err
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if l.remove(topic, id) {
				_ = l.write(models.ClientFrame{Op: models.OpUnsubscribe, Topic: topic})
			}
		})
	}, nil
}

// SetTyping sends the caller's typing flag for chatID.
func (c *Client) SetTyping(_ context.Context, chatID string, typing bool) error {
	if c.listener == nil {
		return ErrNotConnected
	}
	return c.listener.write(models.ClientFrame{Op: models.OpTyping, ChatID: chatID, Typing: typing})
}

// Close ends the listener connection. The server then runs its disconnect
// hook and marks the caller offline.
func (c *Client) Close() error {
	if c.listener == nil {
		return nil
	}
	l := c.listener
	l.writeMu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	l.writeMu.Unlock()
	err := l.conn.Close()
	<-l.done
	return err
}

// remove drops one callback and reports whether the topic has none left.
func (l *listener) remove(topic string, id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.topics[topic]
	for i, cb := range list {
		if cb.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(l.topics, topic)
		delete(l.last, topic)
		return !l.closed
	}
	l.topics[topic] = list
	return false
}

func (l *listener) write(frame models.ClientFrame) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return l.conn.WriteJSON(frame)
}

// dispatch records the latest snapshot of topic and hands the frame to
// every callback registered at that moment.
func (l *listener) dispatch(frame models.ServerFrame) {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()

	l.mu.Lock()
	list := append([]callback(nil), l.topics[frame.Topic]...)
	if len(list) > 0 && frame.Type == models.FrameSnapshot {
		l.last[frame.Topic] = frame.Data
	} else {
		delete(l.last, frame.Topic)
	}
	l.mu.Unlock()

	var err error
	if frame.Type == models.FrameError {
		err = errors.New(frame.Error)
	}
	for _, cb := range list {
		if err != nil {
			cb.fn(nil, err)
			continue
		}
		cb.fn(frame.Data, nil)
	}
}

func (l *listener) readLoop() {
	defer close(l.done)
	for {
		var frame models.ServerFrame
		if err := l.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.Warn("listener_read_failed", zap.Error(err))
			}
			l.shutdown()
			return
		}
		switch frame.Type {
		case models.FrameSnapshot, models.FrameError:
			l.dispatch(frame)
		}
	}
}

// shutdown tells every remaining listener that no more snapshots will come.
func (l *listener) shutdown() {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()
	l.mu.Lock()
	l.closed = true
	topics := l.topics
	l.topics = map[string][]callback{}
	l.last = map[string]json.RawMessage{}
	l.mu.Unlock()
	for _, list := range topics {
		for _, cb := range list {
			cb.fn(nil, ErrDisconnected)
		}
	}
}
