package realtime

import (
	"context"
	"sync"
)

// Session collects writes to run when a connection goes away, cleanly or not.
// Hooks run once, newest first.
type Session struct {
	mu    sync.Mutex
	hooks []func(context.Context)
	done  bool
}

// NewSession returns an armed session.
func NewSession() *Session {
	return &Session{}
}

// OnDisconnect registers fn. Registering after Disconnect runs fn immediately.
func (s *Session) OnDisconnect(ctx context.Context, fn func(context.Context)) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		fn(ctx)
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Disconnect runs the registered hooks. Later calls are no-ops.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](ctx)
	}
}
