package livesync

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/logger"
)

// Session is the signed-in user's sync state. Roster and presence only start
// listening once Start runs with a known identity.
type Session struct {
	identity auth.Identity
	src      Source

	roster   *Roster
	presence *Presence

	mu      sync.Mutex
	started bool
}

func NewSession(id auth.Identity, src Source) *Session {
	return &Session{
		identity: id,
		src:      src,
		roster:   NewRoster(id.UID, src),
		presence: NewPresence(src),
	}
}

func (s *Session) Identity() auth.Identity { return s.identity }

// IsAdmin reflects the role claim of the session token. The server enforces
// it again on every admin route.
func (s *Session) IsAdmin() bool { return s.identity.Admin }

func (s *Session) Roster() *Roster     { return s.roster }
func (s *Session) Presence() *Presence { return s.presence }

// Start subscribes roster and presence. A second call is a no-op.
func (s *Session) Start(ctx context.Context) error {
	if s.identity.UID == "" {
		return ErrSignedOut
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.roster.Start(ctx); err != nil {
		return err
	}
	if err := s.presence.Start(ctx); err != nil {
		s.roster.Stop()
		return err
	}
	s.started = true
	logger.Log.Info("session_started", zap.String("uid", s.identity.UID))
	return nil
}

func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Stop detaches every listener.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.roster.Stop()
	s.presence.Stop()
	s.started = false
}

// Open creates the conversation view for chatID. The session must be started.
func (s *Session) Open(ctx context.Context, chatID string, cmds Commands, opts ConversationOptions) (*Conversation, error) {
	if !s.Started() {
		return nil, ErrNotStarted
	}
	conv := NewConversation(chatID, s.identity.UID, s.src, cmds, opts)
	if err := conv.Start(ctx); err != nil {
		return nil, err
	}
	return conv, nil
}
