// Package staff содержит действия портала сотрудника и консоли администратора.
// Каждое изменяющее действие защищено от повторного запуска, пока предыдущий запрос
// по тому же объекту не завершился.
package staff

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/notify"
)

// ErrInFlight возвращается, если действие над объектом уже выполняется.
var ErrInFlight = errors.New("action already in flight")

// PortalAPI: удалённые операции портала сотрудника.
type PortalAPI interface {
	StaffQueue(ctx context.Context, queue gateway.Queue, page, limit int) (*model.PaymentPage, error)
	VerifyPayment(ctx context.Context, paymentID string, action gateway.VerifyAction) (*gateway.PaymentRef, error)
	SubmitToSwift(ctx context.Context, paymentID string) (*gateway.PaymentRef, error)
}

// inflight: множество объектов, над которыми сейчас выполняется действие.
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (f *inflight) acquire(key string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = make(map[string]struct{})
	}
	if _, ok := f.keys[key]; ok {
		return nil, ErrInFlight
	}
	f.keys[key] = struct{}{}
	return func() {
		f.mu.Lock()
		delete(f.keys, key)
		f.mu.Unlock()
	}, nil
}

func (f *inflight) busy(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[key]
	return ok
}

// Portal: портал сотрудника: очереди платежей, проверка и отправка в SWIFT.
type Portal struct {
	api      PortalAPI
	notifier notify.Notifier
	logger   *zap.Logger
	inflight inflight
}

// NewPortal создаёт портал.
func NewPortal(api PortalAPI, notifier notify.Notifier, logger *zap.Logger) *Portal {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Portal{api: api, notifier: notifier, logger: logger}
}

// Queue возвращает страницу очереди.
func (p *Portal) Queue(ctx context.Context, queue gateway.Queue, page, limit int) (*model.PaymentPage, error) {
	res, err := p.api.StaffQueue(ctx, queue, page, limit)
	if err != nil {
		return nil, fmt.Errorf("load %s queue: %w", queue, err)
	}
	return res, nil
}

// Busy сообщает, выполняется ли сейчас действие над платежом.
func (p *Portal) Busy(paymentID string) bool {
	return p.inflight.busy(paymentID)
}

// Verify одобряет или отклоняет платёж.
func (p *Portal) Verify(ctx context.Context, paymentID string, action gateway.VerifyAction) (*gateway.PaymentRef, error) {
	release, err := p.inflight.acquire(paymentID)
	if err != nil {
		return nil, err
	}
	defer release()

	ref, err := p.api.VerifyPayment(ctx, paymentID, action)
	if err != nil {
		p.fail(err, "Failed to verify payment. Please try again.", paymentID)
		return nil, err
	}

	msg := fmt.Sprintf("Payment %s approved.", paymentID)
	if action == gateway.VerifyReject {
		msg = fmt.Sprintf("Payment %s rejected.", paymentID)
	}
	p.notifier.Notify(notify.SeveritySuccess, msg)
	p.logger.Info("payment verified",
		zap.String("payment_id", paymentID),
		zap.String("action", string(action)),
		zap.String("status", string(ref.Status)))
	return ref, nil
}

// SubmitToSwift отправляет проверенный платёж в SWIFT.
func (p *Portal) SubmitToSwift(ctx context.Context, paymentID string) (*gateway.PaymentRef, error) {
	release, err := p.inflight.acquire(paymentID)
	if err != nil {
		return nil, err
	}
	defer release()

	ref, err := p.api.SubmitToSwift(ctx, paymentID)
	if err != nil {
		p.fail(err, "Failed to submit payment to SWIFT. Please try again.", paymentID)
		return nil, err
	}
	p.notifier.Notify(notify.SeveritySuccess, fmt.Sprintf("Payment %s submitted to SWIFT.", paymentID))
	p.logger.Info("payment submitted to swift", zap.String("payment_id", paymentID))
	return ref, nil
}

func (p *Portal) fail(err error, fallback, paymentID string) {
	p.notifier.Notify(notify.SeverityError, gateway.UserMessage(err, fallback))
	p.logger.Warn("staff action failed", zap.String("payment_id", paymentID), zap.Error(err))
}
