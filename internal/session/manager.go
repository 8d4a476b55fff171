package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInactivityTimeout is how long a disconnected user is kept.
const DefaultInactivityTimeout = 30 * time.Minute

// Status of a user session
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// ErrNotFound is returned for unknown users and connections.
var ErrNotFound = errors.New("session not found")

// Session is the per-user state shared by all of a user's connections.
type Session struct {
	UserID           string    `json:"user_id"`
	Status           Status    `json:"status"`
	ActiveConnection string    `json:"active_connection,omitempty"`
	Connections      int       `json:"connections"`
	ConnectionCount  int       `json:"connection_count"`
	StartedAt        time.Time `json:"started_at"`
	LastConnectedAt  time.Time `json:"last_connected_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	LastDisconnectAt time.Time `json:"last_disconnect_at,omitempty"`
}

// Manager tracks sessions by user and connections by connection id.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	connections       map[string]string
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	now               func() time.Time
	logger            *slog.Logger
}

// NewManager creates a session manager. A non-positive timeout uses
// DefaultInactivityTimeout.
func NewManager(inactivityTimeout time.Duration, logger *slog.Logger) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = DefaultInactivityTimeout
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		connections:       make(map[string]string),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
		logger:            logger.With("component", "session_manager"),
	}
}

// SetExpireHook registers a function called, outside the manager's lock,
// for every expired session.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Connect records a new connection for userID and returns the updated
// session.
func (m *Manager) Connect(userID, connectionID string) *Session {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok || s.Status != StatusActive {
		s = &Session{
			UserID:    userID,
			Status:    StatusActive,
			StartedAt: now,
		}
		m.sessions[userID] = s
	}
	s.Connections++
	s.ConnectionCount++
	s.ActiveConnection = connectionID
	s.LastConnectedAt = now
	s.LastActivityAt = now
	m.connections[connectionID] = userID

	m.logger.Debug("connection opened",
		"user_id", userID,
		"connection_id", connectionID,
		"connections", s.Connections)
	return clone(s)
}

// Disconnect removes a connection. The session stays until it expires.
func (m *Manager) Disconnect(connectionID string) (*Session, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.connections[connectionID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.connections, connectionID)

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Connections > 0 {
		s.Connections--
	}
	if s.ActiveConnection == connectionID {
		s.ActiveConnection = ""
	}
	s.LastDisconnectAt = now
	s.LastActivityAt = now

	m.logger.Debug("connection closed",
		"user_id", userID,
		"connection_id", connectionID,
		"connections", s.Connections)
	return clone(s), nil
}

// Touch marks activity on a connection.
func (m *Manager) Touch(connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.connections[connectionID]
	if !ok {
		return ErrNotFound
	}
	s, ok := m.sessions[userID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = m.now()
	return nil
}

// UserForConnection returns the user that owns connectionID.
func (m *Manager) UserForConnection(connectionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userID, ok := m.connections[connectionID]
	return userID, ok
}

// Get returns a copy of the user's session.
func (m *Manager) Get(userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// ActiveCount returns the number of active sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// StartJanitor expires inactive sessions every interval until ctx ends.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ExpireInactive()
			}
		}
	}()
}

// ExpireInactive ends every session that has no live connection and has
// been inactive for at least the timeout. It returns the expired sessions.
func (m *Manager) ExpireInactive() []*Session {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for userID, s := range m.sessions {
		if s.Connections > 0 {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		expired = append(expired, clone(s))
		delete(m.sessions, userID)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, s := range expired {
		m.logger.Info("session expired",
			"user_id", s.UserID,
			"duration", s.LastActivityAt.Sub(s.StartedAt).String(),
			"connection_count", s.ConnectionCount)
		if hook != nil {
			hook(s)
		}
	}
	return expired
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
