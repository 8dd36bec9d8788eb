// Package session keeps the current authenticated identity and persists it.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tapgoose/internal/model"
)

// Persister loads and saves the durable session record.
type Persister interface {
	LoadSession(ctx context.Context) (model.Session, error)
	SaveSession(ctx context.Context, session model.Session) error
}

// Manager is the single source of truth for the current identity.
// Every write replaces the whole record in memory and in storage.
type Manager struct {
	persister Persister

	mu      sync.RWMutex
	current model.Session

	subsMu sync.Mutex
	subs   map[int]func(model.Session)
	nextID int
}

// NewManager initializes a manager from persisted storage.
func NewManager(ctx context.Context, persister Persister) (*Manager, error) {
	current, err := persister.LoadSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &Manager{
		persister: persister,
		current:   current,
		subs:      map[int]func(model.Session){},
	}, nil
}

// Get returns a copy of the current session.
func (m *Manager) Get() model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsAuthenticated reports whether a non-empty token is held.
func (m *Manager) IsAuthenticated() bool {
	return m.Get().Authenticated()
}

// SetAuth stores a new identity. The token is opaque and not validated.
func (m *Manager) SetAuth(ctx context.Context, token, username string, isAdmin bool) error {
	return m.replace(ctx, model.Session{Token: token, Username: username, IsAdmin: isAdmin})
}

// ClearAuth resets the identity. Calling it on a cleared session is a no-op
// apart from rewriting the empty record.
func (m *Manager) ClearAuth(ctx context.Context) error {
	return m.replace(ctx, model.Session{})
}

// Subscribe registers fn to be called with the new session after every change.
// The returned func removes the listener.
func (m *Manager) Subscribe(fn func(model.Session)) func() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) replace(ctx context.Context, next model.Session) error {
	m.mu.Lock()
	m.current = next
	m.mu.Unlock()

	// Memory is updated even when persisting fails.
	err := m.persister.SaveSession(ctx, next)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist session")
		err = fmt.Errorf("failed to persist session: %w", err)
	}
	m.notify(next)
	return err
}

func (m *Manager) notify(s model.Session) {
	m.subsMu.Lock()
	listeners := make([]func(model.Session), 0, len(m.subs))
	for _, fn := range m.subs {
		listeners = append(listeners, fn)
	}
	m.subsMu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}
