// Package service implements the portal services around the integrity core:
// sessions, authentication, auditing, nominations, voting orchestration and
// results tabulation.
package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one authenticated browser session, voter or admin.
type Session struct {
	Token        string
	UserID       uint
	IsAdmin      bool
	CreatedAt    time.Time
	LastActivity time.Time
}

// SessionManager keeps sessions in memory, keyed by an opaque uuid token.
// Sessions expire after the inactivity timeout.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	timeout  time.Duration
	now      func() time.Time
}

func NewSessionManager(timeout time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Create opens a session for the given account and returns its token.
func (m *SessionManager) Create(userID uint, isAdmin bool) *Session {
	now := m.now()
	s := &Session{
		Token:        uuid.NewString(),
		UserID:       userID,
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()
	return s
}

// Resolve returns the live session for a token, touching its activity
// timestamp. Expired sessions are removed and reported as absent.
func (m *SessionManager) Resolve(token string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, false
	}
	now := m.now()
	if now.Sub(s.LastActivity) > m.timeout {
		delete(m.sessions, token)
		return nil, false
	}
	s.LastActivity = now
	return s, true
}

// Destroy ends a session; unknown tokens are a no-op.
func (m *SessionManager) Destroy(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}
