package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/nexuspay-client/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.Local)}
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

func testUser(role model.Role) model.User {
	return model.User{ID: "u-1", FullName: "Dev User", Role: role, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestLoginDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{3, 3 * time.Second},
		{15, 15 * time.Second},
		{40, 15 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LoginDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestManager_ThreeFailuresThrottle(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(clock.Now)

	m.LoginFailed()
	m.LoginFailed()
	next := m.LoginFailed()

	assert.Equal(t, 3*time.Second, next.Sub(clock.Now()))
	assert.Equal(t, 3*time.Second, m.RetryAfter())

	snap := m.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Equal(t, 3, snap.FailedAttempts)
	require.NotNil(t, snap.NextAllowedLoginAt)

	clock.Advance(3 * time.Second)
	assert.Zero(t, m.RetryAfter())
}

func TestManager_SuccessResetsThrottle(t *testing.T) {
	m := NewManager(newFakeClock().Now)
	m.LoginFailed()
	m.LoginFailed()

	m.LoginSuccess(testUser(model.RoleCustomer), true)

	snap := m.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Zero(t, snap.FailedAttempts)
	assert.Nil(t, snap.NextAllowedLoginAt)
	require.NotNil(t, snap.IsFirstLogin)
	assert.True(t, *snap.IsFirstLogin)
	assert.Zero(t, m.RetryAfter())
}

func TestManager_LogoutClearsUserButKeepsFailures(t *testing.T) {
	m := NewManager(newFakeClock().Now)
	m.LoginSuccess(testUser(model.RoleStaff), false)
	assert.True(t, m.Logout(ReasonTimeout))

	m.LoginFailed()
	assert.False(t, m.Logout(ReasonUser), "logout of an unauthenticated session is a no-op")

	snap := m.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Nil(t, snap.User)
	assert.Nil(t, snap.IsFirstLogin)
	assert.Equal(t, 1, snap.FailedAttempts)
	assert.Equal(t, ReasonTimeout, m.LastLogout())
}

func TestManager_LoginFailedKeepsOpenSession(t *testing.T) {
	m := NewManager(newFakeClock().Now)
	m.LoginSuccess(testUser(model.RoleCustomer), false)

	events, cancel := m.Subscribe()
	defer cancel()

	next := m.LoginFailed()
	assert.True(t, next.IsZero())

	snap := m.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	require.NotNil(t, snap.User)
	assert.Zero(t, snap.FailedAttempts)
	assert.Zero(t, m.RetryAfter())

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q", ev.Kind)
	default:
	}
}

func TestManager_SnapshotIsCopy(t *testing.T) {
	m := NewManager(nil)
	m.LoginSuccess(testUser(model.RoleCustomer), false)

	snap := m.Snapshot()
	snap.User.FullName = "Changed"

	assert.Equal(t, "Dev User", m.Snapshot().User.FullName)
}

func TestManager_Subscribe(t *testing.T) {
	m := NewManager(nil)
	events, cancel := m.Subscribe()

	m.LoginSuccess(testUser(model.RoleCustomer), false)
	m.Logout(ReasonUnauthorized)
	m.Logout(ReasonUser)

	ev := <-events
	assert.Equal(t, EventLoginSuccess, ev.Kind)
	assert.True(t, ev.Session.IsAuthenticated)

	ev = <-events
	assert.Equal(t, EventLogout, ev.Kind)
	assert.Equal(t, ReasonUnauthorized, ev.Reason)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
}
