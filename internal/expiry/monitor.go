// Package expiry следит за активностью пользователя и завершает сессию по бездействию.
package expiry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/session"
)

// Значения по умолчанию.
const (
	DefaultSessionLength    = 15 * time.Minute
	DefaultWarningLead      = 5 * time.Minute
	DefaultActivityThrottle = 30 * time.Second
	DefaultTickInterval     = time.Second
)

var (
	// ErrInactive возвращается, если нет аутентифицированной сессии.
	ErrInactive = errors.New("no active session")
	// ErrStopped возвращается после остановки монитора.
	ErrStopped = errors.New("expiry monitor stopped")
)

// Config: параметры монитора.
type Config struct {
	SessionLength    time.Duration
	WarningLead      time.Duration
	ActivityThrottle time.Duration
	// TickInterval: период обновления обратного отсчёта.
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionLength <= 0 {
		c.SessionLength = DefaultSessionLength
	}
	if c.WarningLead <= 0 || c.WarningLead >= c.SessionLength {
		c.WarningLead = min(DefaultWarningLead, c.SessionLength/3)
	}
	if c.ActivityThrottle <= 0 {
		c.ActivityThrottle = DefaultActivityThrottle
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// Session: действия над сессией, которые выполняет монитор.
type Session interface {
	Logout(ctx context.Context, reason session.LogoutReason)
	Refresh(ctx context.Context) error
}

// Events: источник переходов сессии.
type Events interface {
	Subscribe() (<-chan session.Event, func())
	IsAuthenticated() bool
}

// Observer получает уведомления о предупреждениях и принудительных выходах.
type Observer interface {
	WarningShown()
	TimedOut()
}

// State: состояние бездействия для отображения предупреждения.
type State struct {
	Active           bool      `json:"active"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
	SessionExpiresAt time.Time `json:"sessionExpiresAt"`
	WarningVisible   bool      `json:"warningVisible"`
	SecondsRemaining int       `json:"secondsRemaining"`
}

type command struct {
	logout bool
	reply  chan error
}

// Monitor: конечный автомат бездействия. Все таймеры живут внутри Run.
type Monitor struct {
	cfg      Config
	sess     Session
	events   Events
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	activity chan struct{}
	commands chan command
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	state    State
	throttle *rate.Sometimes
}

// New создаёт монитор. observer может быть nil.
func New(cfg Config, sess Session, events Events, observer Observer, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:      cfg,
		sess:     sess,
		events:   events,
		observer: observer,
		logger:   logger,
		now:      time.Now,
		activity: make(chan struct{}, 1),
		commands: make(chan command),
		done:     make(chan struct{}),
		throttle: &rate.Sometimes{Interval: cfg.ActivityThrottle},
	}
}

// Activity отмечает действие пользователя. Обновления схлопываются не чаще раза в ActivityThrottle.
func (m *Monitor) Activity() {
	m.mu.RLock()
	throttle := m.throttle
	m.mu.RUnlock()

	throttle.Do(func() {
		select {
		case m.activity <- struct{}{}:
		default:
		}
	})
}

// Extend продлевает сессию по запросу из предупреждения.
func (m *Monitor) Extend(ctx context.Context) error {
	return m.send(ctx, command{})
}

// LogoutNow завершает сессию по запросу из предупреждения.
func (m *Monitor) LogoutNow(ctx context.Context) error {
	return m.send(ctx, command{logout: true})
}

func (m *Monitor) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case m.commands <- cmd:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State возвращает текущее состояние с пересчитанным остатком времени.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.state
	if st.Active {
		st.SecondsRemaining = remainingSeconds(st.SessionExpiresAt.Sub(m.now()))
	}
	return st
}

func remainingSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// loop: таймеры одного запуска Run. Доступ только из горутины Run.
type loop struct {
	warn   *time.Timer
	warnC  <-chan time.Time
	ticker *time.Ticker
	tickC  <-chan time.Time
}

func (l *loop) stop() {
	if l.warn != nil {
		l.warn.Stop()
		l.warn, l.warnC = nil, nil
	}
	if l.ticker != nil {
		l.ticker.Stop()
		l.ticker, l.tickC = nil, nil
	}
}

// Run обрабатывает события до отмены ctx. При выходе все таймеры останавливаются.
func (m *Monitor) Run(ctx context.Context) error {
	events, unsubscribe := m.events.Subscribe()
	defer unsubscribe()

	var l loop
	defer func() {
		l.stop()
		m.deactivate()
		m.stopOnce.Do(func() { close(m.done) })
	}()

	if m.events.IsAuthenticated() {
		m.start(&l)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case session.EventLoginSuccess:
				m.start(&l)
			case session.EventLogout, session.EventLoginFailed:
				l.stop()
				m.deactivate()
			}

		case <-m.activity:
			if m.active() {
				m.touch(&l)
			}

		case <-l.warnC:
			l.warn, l.warnC = nil, nil
			m.showWarning(&l)

		case <-l.tickC:
			if !m.events.IsAuthenticated() {
				l.stop()
				m.deactivate()
				continue
			}
			if m.State().SecondsRemaining == 0 {
				m.timeout(ctx, &l)
			}

		case cmd := <-m.commands:
			cmd.reply <- m.handle(ctx, &l, cmd)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, l *loop, cmd command) error {
	if !m.active() {
		return ErrInactive
	}

	if cmd.logout {
		l.stop()
		m.deactivate()
		m.sess.Logout(ctx, session.ReasonUser)
		return nil
	}

	if err := m.sess.Refresh(ctx); err != nil {
		if gateway.IsKind(err, gateway.KindUnauthenticated) || errors.Is(err, session.ErrNotAuthenticated) {
			l.stop()
			m.deactivate()
			return err
		}
		// Сервер недоступен: продлеваем локально, сервер проверит токен при следующем запросе.
		m.logger.Warn("silent refresh failed", zap.Error(err))
	}
	m.touch(l)
	return nil
}

func (m *Monitor) start(l *loop) {
	m.mu.Lock()
	m.throttle = &rate.Sometimes{Interval: m.cfg.ActivityThrottle}
	m.mu.Unlock()

	m.touch(l)
}

func (m *Monitor) touch(l *loop) {
	l.stop()

	now := m.now()
	m.mu.Lock()
	m.state = State{
		Active:           true,
		LastActivityAt:   now,
		SessionExpiresAt: now.Add(m.cfg.SessionLength),
	}
	m.mu.Unlock()

	l.warn = time.NewTimer(m.cfg.SessionLength - m.cfg.WarningLead)
	l.warnC = l.warn.C
}

func (m *Monitor) showWarning(l *loop) {
	m.mu.Lock()
	m.state.WarningVisible = true
	m.mu.Unlock()

	l.ticker = time.NewTicker(m.cfg.TickInterval)
	l.tickC = l.ticker.C

	m.logger.Info("session expiry warning", zap.Int("seconds_remaining", m.State().SecondsRemaining))
	if m.observer != nil {
		m.observer.WarningShown()
	}
}

func (m *Monitor) timeout(ctx context.Context, l *loop) {
	l.stop()
	m.deactivate()

	m.logger.Info("session timed out")
	if m.observer != nil {
		m.observer.TimedOut()
	}
	m.sess.Logout(ctx, session.ReasonTimeout)
}

func (m *Monitor) active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Active
}

func (m *Monitor) deactivate() {
	m.mu.Lock()
	m.state = State{}
	m.mu.Unlock()
}
