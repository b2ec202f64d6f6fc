// Package session tracks signed-in users. The browser only holds an opaque
// session id; the API token stays on the server.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasury/internal/api"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// Session is the state of one signed-in user.
type Session struct {
	ID          string
	Token       string
	UserID      int
	Username    string
	Role        string
	CompanyID   int
	CompanyName string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions.
type Store interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// Manager creates, resolves and ends sessions.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	onEnd []func(id string)
}

// NewManager returns a manager issuing sessions that live for ttl.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// OnEnd registers a callback run after a session is ended or found expired.
func (m *Manager) OnEnd(fn func(id string)) {
	m.onEnd = append(m.onEnd, fn)
}

// Start stores a new session for a successful sign-in.
func (m *Manager) Start(ctx context.Context, res *api.SignInResponse) (*Session, error) {
	if res == nil || res.Token == "" {
		return nil, errors.New("sign-in response has no token")
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		Token:     res.Token,
		UserID:    res.User.UserID,
		Username:  res.User.Username,
		Role:      res.User.Role.RoleName,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if c, ok := res.User.DefaultCompany(); ok {
		s.CompanyID = c.CompanyID
		s.CompanyName = c.CompanyName
	}

	if err := m.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

// Resolve returns the live session for id. Expired sessions are deleted.
func (m *Manager) Resolve(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		_ = m.End(ctx, id)
		return nil, ErrExpired
	}
	return s, nil
}

// End deletes the session.
func (m *Manager) End(ctx context.Context, id string) error {
	err := m.store.DeleteSession(ctx, id)
	for _, fn := range m.onEnd {
		fn(id)
	}
	return err
}

// Sweep deletes every expired session.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.DeleteExpiredSessions(ctx, m.now())
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) SaveSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
