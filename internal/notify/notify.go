// Package notify содержит контракт пользовательских уведомлений и ленту последних сообщений.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity: уровень уведомления.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

const defaultCapacity = 50

// Notifier принимает уведомления для пользователя.
type Notifier interface {
	Notify(severity Severity, message string)
}

// Notification: одно уведомление ленты.
type Notification struct {
	ID       int64     `json:"id"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Feed хранит последние уведомления в ограниченном буфере.
type Feed struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	nextID   int64
	now      func() time.Time
	logger   *zap.Logger
}

// NewFeed создаёт ленту. capacity <= 0 означает значение по умолчанию.
func NewFeed(capacity int, logger *zap.Logger) *Feed {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{capacity: capacity, now: time.Now, logger: logger}
}

// Notify добавляет уведомление, вытесняя самое старое при переполнении.
func (f *Feed) Notify(severity Severity, message string) {
	f.mu.Lock()
	f.nextID++
	n := Notification{ID: f.nextID, Severity: severity, Message: message, At: f.now()}
	f.items = append(f.items, n)
	if len(f.items) > f.capacity {
		f.items = f.items[len(f.items)-f.capacity:]
	}
	f.mu.Unlock()

	f.logger.Debug("notification",
		zap.Int64("id", n.ID),
		zap.String("severity", string(severity)),
		zap.String("message", message),
	)
}

// Since возвращает уведомления с ID больше after.
func (f *Feed) Since(after int64) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Notification, 0, len(f.items))
	for _, n := range f.items {
		if n.ID > after {
			out = append(out, n)
		}
	}
	return out
}

// Discard игнорирует все уведомления.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Severity, string) {}
