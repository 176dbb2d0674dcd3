package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Manager ties the session lifetime to authentication: at most one session exists,
// and only while a user is signed in.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	current *Session
}

func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{opts: opts, log: log.With(zap.String("component", "session_manager"))}
}

// SetAuth reacts to an authentication change. Any existing session is disposed first;
// a new one is started only when authenticated with a non-empty token.
func (m *Manager) SetAuth(ctx context.Context, token string, authenticated bool) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
	if !authenticated || token == "" {
		m.log.Info("signed out, notifications stopped")
		return nil
	}

	s := New(token, m.opts)
	s.Start(ctx)
	m.current = s
	m.log.Info("notification session started")
	return s
}

// Current returns the live session, or nil when signed out.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close disposes the current session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
