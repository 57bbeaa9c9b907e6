// Package session управляет состоянием аутентификации процесса: переходы входа и выхода, ограничение
// частоты попыток входа, восстановление сессии при старте и проверка доступа к маршрутам.
package session

import (
	"sync"
	"time"

	"github.com/mmeshcher/nexuspay-client/internal/model"
)

const (
	// BaseLoginDelay: шаг задержки после каждой неудачной попытки входа.
	BaseLoginDelay = time.Second
	// MaxLoginDelay: верхняя граница задержки.
	MaxLoginDelay = 15 * time.Second

	subscriberBuffer = 16
)

// LogoutReason: причина выхода, определяет страницу, на которую уходит пользователь.
type LogoutReason string

const (
	ReasonUser         LogoutReason = "user"
	ReasonTimeout      LogoutReason = "timeout"
	ReasonUnauthorized LogoutReason = "unauthorized"
)

// EventKind: вид перехода состояния.
type EventKind string

const (
	EventLoginSuccess EventKind = "login_success"
	EventLoginFailed  EventKind = "login_failed"
	EventLogout       EventKind = "logout"
)

// Event описывает совершённый переход.
type Event struct {
	Kind    EventKind
	Reason  LogoutReason
	Session model.Session
}

// Manager: единственный владелец состояния сессии. Изменяется только через
// LoginSuccess, LoginFailed и Logout.
type Manager struct {
	mu  sync.RWMutex
	now func() time.Time

	authenticated  bool
	user           *model.User
	isFirstLogin   *bool
	failedAttempts int
	nextAllowedAt  time.Time
	lastLogout     LogoutReason

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewManager создаёт менеджер в состоянии Unauthenticated.
func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{now: now, subs: make(map[int]chan Event)}
}

// LoginSuccess переводит сессию в Authenticated и сбрасывает счётчик неудач.
func (m *Manager) LoginSuccess(user model.User, isFirstLogin bool) {
	m.mu.Lock()
	m.authenticated = true
	m.user = &user
	m.isFirstLogin = &isFirstLogin
	m.failedAttempts = 0
	m.nextAllowedAt = time.Time{}
	m.lastLogout = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(Event{Kind: EventLoginSuccess, Session: snap})
}

// LoginFailed увеличивает счётчик неудач и возвращает момент, с которого разрешена следующая попытка.
// Переход определён только из Unauthenticated: открытая сессия не меняется и событие не публикуется.
func (m *Manager) LoginFailed() time.Time {
	m.mu.Lock()
	if m.authenticated {
		next := m.nextAllowedAt
		m.mu.Unlock()
		return next
	}
	m.authenticated = false
	m.user = nil
	m.isFirstLogin = nil
	m.failedAttempts++
	m.nextAllowedAt = m.now().Add(LoginDelay(m.failedAttempts))
	next := m.nextAllowedAt
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(Event{Kind: EventLoginFailed, Session: snap})
	return next
}

// Logout переводит сессию в Unauthenticated. Счётчик неудач не сбрасывается.
// Возвращает false, если сессия уже была неаутентифицирована.
func (m *Manager) Logout(reason LogoutReason) bool {
	m.mu.Lock()
	was := m.authenticated
	m.authenticated = false
	m.user = nil
	m.isFirstLogin = nil
	if was {
		m.lastLogout = reason
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if was {
		m.publish(Event{Kind: EventLogout, Reason: reason, Session: snap})
	}
	return was
}

// LoginDelay возвращает задержку после n неудачных попыток.
func LoginDelay(failedAttempts int) time.Duration {
	if failedAttempts <= 0 {
		return 0
	}
	return min(BaseLoginDelay*time.Duration(failedAttempts), MaxLoginDelay)
}

// UpdateUser заменяет снимок пользователя, не меняя состояния. Без аутентификации ничего не делает.
func (m *Manager) UpdateUser(user model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.authenticated {
		m.user = &user
	}
}

// Snapshot возвращает копию состояния сессии.
func (m *Manager) Snapshot() model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() model.Session {
	s := model.Session{
		IsAuthenticated: m.authenticated,
		FailedAttempts:  m.failedAttempts,
	}
	if m.authenticated && m.user != nil {
		u := *m.user
		s.User = &u
	}
	if m.authenticated && m.isFirstLogin != nil {
		v := *m.isFirstLogin
		s.IsFirstLogin = &v
	}
	if !m.nextAllowedAt.IsZero() {
		t := m.nextAllowedAt
		s.NextAllowedLoginAt = &t
	}
	return s
}

// IsAuthenticated сообщает текущее состояние.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticated
}

// RetryAfter возвращает, сколько ещё ждать до следующей попытки входа.
func (m *Manager) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.nextAllowedAt.IsZero() {
		return 0
	}
	return max(m.nextAllowedAt.Sub(m.now()), 0)
}

// LastLogout возвращает причину последнего выхода из Authenticated.
func (m *Manager) LastLogout() LogoutReason {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastLogout
}

// Subscribe возвращает канал событий и функцию отписки. Медленный подписчик теряет события,
// поэтому состояние всегда следует перечитывать через Snapshot.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) publish(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
