package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tesouraria/internal/store"
	"tesouraria/internal/tenant"
)

// Manager opens and tracks one session per user id.
type Manager struct {
	st       store.Store
	resolver *tenant.Resolver
	auth     tenant.DeleteAuthorizer
	events   EventPublisher

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(st store.Store, resolver *tenant.Resolver, auth tenant.DeleteAuthorizer, events EventPublisher) *Manager {
	return &Manager{
		st:       st,
		resolver: resolver,
		auth:     auth,
		events:   events,
		sessions: make(map[string]*Session),
	}
}

// Open returns the user's session, creating it on first use. A user
// with no membership gets an empty read-only session; ambiguous
// membership is surfaced to the caller instead of picking a partition.
func (m *Manager) Open(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	t, err := m.resolver.Resolve(ctx, userID)
	hasTenant := true
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		hasTenant = false
	case errors.Is(err, tenant.ErrAmbiguousMembership):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("resolve partition: %w", err)
	}

	admin := m.resolver.IsAdministrator(ctx, userID)

	s := newSession(m.st, m.auth, m.events, userID)
	if err := s.open(ctx, t, hasTenant, admin); err != nil {
		s.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[userID]; ok {
		// Lost the race; keep the first one.
		m.mu.Unlock()
		s.Close()
		return existing, nil
	}
	m.sessions[userID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns an already open session.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close drops the user's session.
func (m *Manager) Close(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Reopen rebuilds the session after a membership change.
func (m *Manager) Reopen(ctx context.Context, userID string) (*Session, error) {
	m.Close(userID)
	return m.Open(ctx, userID)
}

// CloseAll drops every session, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
