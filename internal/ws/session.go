package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/logger"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/realtime"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/telemetry"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 8 << 10

	// Inbound frames per second per connection, with a small burst.
	frameRate  = 20
	frameBurst = 40
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionHandler serves GET /ws: the listener protocol plus presence and typing.
type SessionHandler struct {
	hub      *Hub
	verifier auth.TokenVerifier
	store    realtime.Store
	users    repositories.UserRepository
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(hub *Hub, verifier auth.TokenVerifier, store realtime.Store, users repositories.UserRepository) *SessionHandler {
	return &SessionHandler{hub: hub, verifier: verifier, store: store, users: users}
}

// Handle authenticates, upgrades and runs the connection until it closes.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "ws.handshake")
	token := bearerToken(c)
	id, err := h.verifier.Verify(token)
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}
	traceID := span.SpanContext().TraceID().String()
	span.End()

	client := NewClient(id, ConnInfo{
		DeviceID:  observability.DeviceIDFromRequest(c.Request),
		IP:        observability.IPFromRequest(c.Request),
		RequestID: observability.RequestIDFromRequest(c.Request),
		TraceID:   traceID,
	})
	h.serve(context.WithoutCancel(ctx), conn, client)
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}

// connState is per-connection bookkeeping owned by the reader goroutine.
type connState struct {
	session *realtime.Session
	typed   map[string]bool
}

func (h *SessionHandler) serve(ctx context.Context, conn *websocket.Conn, client *Client) {
	session := realtime.NewSession()
	state := &connState{session: session, typed: map[string]bool{}}
	uid := client.Identity.UID

	unlock := h.hub.lockUser(uid)
	if h.hub.Register(client) {
		if _, err := h.users.EnsureUser(ctx, uid, client.Identity.Email); err != nil {
			logger.Log.Warn("ensure_user_failed", zap.String("uid", uid), zap.Error(err))
		}
		if err := h.store.SetPresence(ctx, uid, realtime.Online(time.Now())); err != nil {
			logger.Log.Warn("presence_online_failed", zap.String("uid", uid), zap.Error(err))
		}
		// A first connection may have created the profile.
		h.hub.Notify(ctx, TopicUsers)
	}
	unlock()
	// Runs however the connection ends.
	session.OnDisconnect(ctx, func(ctx context.Context) {
		defer h.hub.lockUser(uid)()
		if !h.hub.Unregister(client) {
			return
		}
		now := time.Now()
		if err := h.store.SetPresence(ctx, uid, realtime.Offline(now)); err != nil {
			logger.Log.Warn("presence_offline_failed", zap.String("uid", uid), zap.Error(err))
		}
		if err := h.users.SetLastSeen(ctx, uid, now); err != nil {
			logger.Log.Warn("last_seen_failed", zap.String("uid", uid), zap.Error(err))
		}
		h.hub.Notify(ctx, TopicUsers)
	})

	observability.ListenerConnected()
	h.publish(ctx, "ws_connect", client, "")

	done := make(chan struct{})
	var closeReason string
	defer func() {
		close(done)
		session.Disconnect(ctx)
		client.Close()
		_ = conn.Close()
		observability.ListenerDisconnected()
		h.publish(ctx, "ws_disconnect", client, closeReason)
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go writeLoop(conn, client)
	go pingLoop(conn, done)

	limiter := rate.NewLimiter(rate.Limit(frameRate), frameBurst)
	for {
		var frame models.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.publish(ctx, "ws_error", client, closeReason)
			}
			return
		}
		if !limiter.Allow() {
			client.enqueue(errorFrame(frame.Topic, errors.New("rate limited")))
			continue
		}
		h.handleFrame(ctx, client, state, frame)
	}
}

func (h *SessionHandler) handleFrame(ctx context.Context, client *Client, state *connState, frame models.ClientFrame) {
	observability.IncListenerEvent(frame.Op)
	switch frame.Op {
	case models.OpSubscribe:
		if err := h.hub.Subscribe(ctx, client, frame.Topic); err != nil {
			client.enqueue(errorFrame(frame.Topic, err))
		}
	case models.OpUnsubscribe:
		h.hub.Unsubscribe(client, frame.Topic)
	case models.OpTyping:
		h.typing(ctx, client, state, frame)
	case models.OpPing:
		b, _ := json.Marshal(models.ServerFrame{Type: models.FramePong})
		client.enqueue(b)
	default:
		client.enqueue(errorFrame(frame.Topic, errors.New("unknown op")))
	}
}

// typing writes or clears the caller's typing record. Failures are cosmetic and
// only logged.
func (h *SessionHandler) typing(ctx context.Context, client *Client, state *connState, frame models.ClientFrame) {
	topic := TypingTopic(frame.ChatID)
	if frame.ChatID == "" || !h.hub.Allowed(ctx, client.Identity, topic) {
		client.enqueue(errorFrame(topic, ErrForbidden))
		return
	}
	uid := client.Identity.UID
	if !frame.Typing {
		if err := h.store.ClearTyping(ctx, frame.ChatID, uid); err != nil {
			logger.Log.Debug("typing_clear_failed", zap.String("chat_id", frame.ChatID), zap.Error(err))
		}
		return
	}
	if err := h.store.SetTyping(ctx, frame.ChatID, uid, time.Now()); err != nil {
		logger.Log.Debug("typing_set_failed", zap.String("chat_id", frame.ChatID), zap.Error(err))
		return
	}
	chatID := frame.ChatID
	if state.typed[chatID] {
		return
	}
	state.typed[chatID] = true
	state.session.OnDisconnect(ctx, func(ctx context.Context) {
		_ = h.store.ClearTyping(ctx, chatID, uid)
	})
}

func writeLoop(conn *websocket.Conn, client *Client) {
	for frame := range client.Send() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			logger.Log.Debug("ws_write_failed", zap.String("conn_id", client.Info.ConnID), zap.Error(err))
			_ = conn.Close()
			return
		}
	}
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (h *SessionHandler) publish(ctx context.Context, event string, client *Client, reason string) {
	info := client.Info
	observability.IncListenerEvent(event)
	_ = observability.PublishEvent(ctx, "ws_events", map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
