package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(timeout time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = clock.Now
	return m, clock
}

func TestConnectAndDisconnect(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(time.Minute)

	s := m.Connect("u1", "c1")
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 1, s.Connections)
	assert.Equal(t, "c1", s.ActiveConnection)

	s = m.Connect("u1", "c2")
	assert.Equal(t, 2, s.Connections)
	assert.Equal(t, 2, s.ConnectionCount)
	assert.Equal(t, "c2", s.ActiveConnection)

	userID, ok := m.UserForConnection("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", userID)

	s, err := m.Disconnect("c2")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Connections)
	assert.Empty(t, s.ActiveConnection)

	_, err = m.Disconnect("c2")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, m.Touch("missing"), ErrNotFound)
	assert.NoError(t, m.Touch("c1"))
	assert.Equal(t, 1, m.ActiveCount())
}

func TestExpireInactive(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(30 * time.Minute)

	var hooked []string
	m.SetExpireHook(func(s *Session) {
		hooked = append(hooked, s.UserID)
	})

	m.Connect("connected", "c1")
	m.Connect("gone", "c2")
	_, err := m.Disconnect("c2")
	require.NoError(t, err)

	clock.Advance(29 * time.Minute)
	assert.Empty(t, m.ExpireInactive())

	clock.Advance(2 * time.Minute)
	expired := m.ExpireInactive()
	require.Len(t, expired, 1)
	assert.Equal(t, "gone", expired[0].UserID)
	assert.Equal(t, StatusEnded, expired[0].Status)
	assert.Equal(t, []string{"gone"}, hooked)

	_, err = m.Get("gone")
	assert.ErrorIs(t, err, ErrNotFound)

	// a live connection keeps the session regardless of inactivity
	_, err = m.Get("connected")
	assert.NoError(t, err)
}

func TestReconnectAfterExpiryStartsNewSession(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(time.Minute)

	m.Connect("u1", "c1")
	_, err := m.Disconnect("c1")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	require.Len(t, m.ExpireInactive(), 1)

	s := m.Connect("u1", "c2")
	assert.Equal(t, 1, s.ConnectionCount)
	assert.Equal(t, clock.Now(), s.StartedAt)
}

func TestStartJanitor(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	expired := make(chan string, 1)
	m.SetExpireHook(func(s *Session) { expired <- s.UserID })

	m.Connect("u1", "c1")
	_, err := m.Disconnect("c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 5*time.Millisecond)

	select {
	case userID := <-expired:
		assert.Equal(t, "u1", userID)
	case <-time.After(2 * time.Second):
		t.Fatal("session was not expired by the janitor")
	}
}
