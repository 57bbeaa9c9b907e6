// Package service объединяет компоненты клиента NexusPay для HTTP-слоя.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/nexuspay-client/internal/expiry"
	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/notify"
	"github.com/mmeshcher/nexuspay-client/internal/session"
	"github.com/mmeshcher/nexuspay-client/internal/staff"
	"github.com/mmeshcher/nexuspay-client/internal/store"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
	"github.com/mmeshcher/nexuspay-client/internal/wizard"
)

// ErrNoWizard возвращается, если мастер платежа не запущен.
var ErrNoWizard = errors.New("payment wizard is not started")

// RemoteAPI описывает контракт удалённого API, используемый сервисом.
type RemoteAPI interface {
	wizard.API
	staff.PortalAPI
	staff.ConsoleAPI
	ListPayments(ctx context.Context, page, limit int) (*model.PaymentPage, error)
	CreateBeneficiary(ctx context.Context, in gateway.NewBeneficiary) (*model.SavedBeneficiary, error)
	DeleteBeneficiary(ctx context.Context, id string) error
}

// Expiry: монитор бездействия.
type Expiry interface {
	Activity()
	Extend(ctx context.Context) error
	State() expiry.State
}

// Options: параметры сервиса.
type Options struct {
	PaymentMode    wizard.Mode
	WizardObserver wizard.Observer
	Logger         *zap.Logger
}

// Service объединяет сессию, монитор бездействия, мастер платежа и действия сотрудников.
type Service struct {
	api      RemoteAPI
	sess     *session.Service
	monitor  Expiry
	store    store.Store
	feed     *notify.Feed
	portal   *staff.Portal
	console  *staff.Console
	logger   *zap.Logger
	mode     wizard.Mode
	observer wizard.Observer

	mu     sync.Mutex
	wizard *wizard.Wizard
}

// NewService создаёт сервис.
func NewService(api RemoteAPI, sess *session.Service, monitor Expiry, st store.Store, feed *notify.Feed, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if !opts.PaymentMode.Valid() {
		opts.PaymentMode = wizard.ModeIncremental
	}
	return &Service{
		api:      api,
		sess:     sess,
		monitor:  monitor,
		store:    st,
		feed:     feed,
		portal:   staff.NewPortal(api, feed, opts.Logger),
		console:  staff.NewConsole(api, feed, opts.Logger),
		logger:   opts.Logger,
		mode:     opts.PaymentMode,
		observer: opts.WizardObserver,
	}
}

// Run закрывает мастер платежа при завершении сессии. Блокируется до отмены ctx.
func (s *Service) Run(ctx context.Context) error {
	events, cancel := s.sess.Manager().Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind == session.EventLogout {
				s.CloseWizard()
			}
		}
	}
}

// Ready закрывается после восстановления сессии.
func (s *Service) Ready() <-chan struct{} {
	return s.sess.Ready()
}

// Session возвращает снимок сессии.
func (s *Service) Session() model.Session {
	return s.sess.Manager().Snapshot()
}

// Guard проверяет доступ к разделу для текущей сессии.
func (s *Service) Guard(access session.Access) session.Decision {
	return session.Guard(s.Session(), access)
}

// Login выполняет вход клиента.
func (s *Service) Login(ctx context.Context, in session.CustomerLogin) (session.Outcome, error) {
	return s.sess.Login(ctx, in)
}

// LoginStaff выполняет вход сотрудника.
func (s *Service) LoginStaff(ctx context.Context, in session.StaffLogin) (session.Outcome, error) {
	return s.sess.LoginStaff(ctx, in)
}

// LoginAdmin выполняет вход администратора.
func (s *Service) LoginAdmin(ctx context.Context, in session.AdminLogin) (session.Outcome, error) {
	return s.sess.LoginAdmin(ctx, in)
}

// Register регистрирует клиента.
func (s *Service) Register(ctx context.Context, in session.Registration) (model.Session, error) {
	return s.sess.Register(ctx, in)
}

// SendOTP запрашивает одноразовый код для сотрудника.
func (s *Service) SendOTP(ctx context.Context, staffID, email string) (*gateway.SendOTPResult, error) {
	return s.sess.SendOTP(ctx, staffID, email)
}

// Logout завершает сессию по запросу пользователя и возвращает маршрут перенаправления.
func (s *Service) Logout(ctx context.Context) string {
	s.CloseWizard()
	s.sess.Logout(ctx, session.ReasonUser)
	return session.RedirectAfterLogout(session.ReasonUser)
}

// ExtendSession продлевает сессию из предупреждения о бездействии.
func (s *Service) ExtendSession(ctx context.Context) error {
	return s.monitor.Extend(ctx)
}

// Activity отмечает действие пользователя.
func (s *Service) Activity() {
	s.monitor.Activity()
}

// Expiry возвращает состояние монитора бездействия.
func (s *Service) Expiry() expiry.State {
	return s.monitor.State()
}

// StartWizard запускает новый мастер платежа, предыдущий закрывается.
func (s *Service) StartWizard(ctx context.Context, mode wizard.Mode) wizard.View {
	if !mode.Valid() {
		mode = s.mode
	}
	prefs, err := s.Preferences(ctx)
	if err != nil {
		prefs = model.DefaultPreferences()
	}

	w := wizard.New(s.api, wizard.Options{
		Mode:     mode,
		Notifier: s.feed,
		Logger:   s.logger,
		Observer: s.observer,
		Currency: prefs.Currency,
	})

	s.mu.Lock()
	prev := s.wizard
	s.wizard = w
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return w.View()
}

// Wizard возвращает текущий мастер платежа.
func (s *Service) Wizard() (*wizard.Wizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wizard == nil || s.wizard.Closed() {
		return nil, ErrNoWizard
	}
	return s.wizard, nil
}

// CloseWizard закрывает текущий мастер платежа.
func (s *Service) CloseWizard() {
	s.mu.Lock()
	w := s.wizard
	s.wizard = nil
	s.mu.Unlock()

	if w != nil {
		w.Close()
	}
}

// ListPayments возвращает платежи текущего клиента.
func (s *Service) ListPayments(ctx context.Context, page, limit int) (*model.PaymentPage, error) {
	return s.api.ListPayments(ctx, page, limit)
}

// ListBeneficiaries возвращает сохранённых получателей.
func (s *Service) ListBeneficiaries(ctx context.Context) ([]model.SavedBeneficiary, error) {
	return s.api.ListBeneficiaries(ctx)
}

// CreateBeneficiary сохраняет получателя после проверки полей.
func (s *Service) CreateBeneficiary(ctx context.Context, in gateway.NewBeneficiary) (*model.SavedBeneficiary, error) {
	in = gateway.NewBeneficiary{
		FullName:      validation.SanitizeText(in.FullName),
		BankName:      validation.SanitizeText(in.BankName),
		AccountNumber: validation.SanitizeText(in.AccountNumber),
		SwiftCode:     validation.FormatSWIFT(validation.SanitizeText(in.SwiftCode)),
	}

	errs := validation.FieldErrors{}
	errs.Check(validation.IsValidFullName(in.FullName), "fullName", "Enter the beneficiary's full name")
	errs.Check(validation.IsValidBankName(in.BankName), "bankName", "Enter the bank name")
	errs.Check(validation.IsValidAccountNumber(in.AccountNumber), "accountNumber", "Account number must be 6-18 digits")
	errs.Check(validation.IsValidSWIFT(in.SwiftCode), "swiftCode", "SWIFT code must be 8 or 11 letters and digits")
	if err := errs.Err(); err != nil {
		return nil, err
	}

	b, err := s.api.CreateBeneficiary(ctx, in)
	if err != nil {
		s.feed.Notify(notify.SeverityError, gateway.UserMessage(err, "Failed to save beneficiary."))
		return nil, err
	}
	s.feed.Notify(notify.SeveritySuccess, "Beneficiary saved.")
	return b, nil
}

// DeleteBeneficiary удаляет сохранённого получателя.
func (s *Service) DeleteBeneficiary(ctx context.Context, id string) error {
	if err := s.api.DeleteBeneficiary(ctx, id); err != nil {
		s.feed.Notify(notify.SeverityError, gateway.UserMessage(err, "Failed to delete beneficiary."))
		return err
	}
	s.feed.Notify(notify.SeveritySuccess, "Beneficiary deleted.")
	return nil
}

// StaffQueue возвращает очередь портала сотрудника.
func (s *Service) StaffQueue(ctx context.Context, queue gateway.Queue, page, limit int) (*model.PaymentPage, error) {
	return s.portal.Queue(ctx, queue, page, limit)
}

// VerifyPayment одобряет или отклоняет платёж.
func (s *Service) VerifyPayment(ctx context.Context, id string, action gateway.VerifyAction) (*gateway.PaymentRef, error) {
	return s.portal.Verify(ctx, id, action)
}

// SubmitToSwift отправляет проверенный платёж в SWIFT.
func (s *Service) SubmitToSwift(ctx context.Context, id string) (*gateway.PaymentRef, error) {
	return s.portal.SubmitToSwift(ctx, id)
}

// ListStaff возвращает сотрудников.
func (s *Service) ListStaff(ctx context.Context, search string) ([]model.StaffMember, error) {
	return s.console.List(ctx, search)
}

// CreateStaff создаёт сотрудника.
func (s *Service) CreateStaff(ctx context.Context, in gateway.StaffInput) (*model.StaffMember, error) {
	return s.console.Create(ctx, in)
}

// UpdateStaff изменяет сотрудника.
func (s *Service) UpdateStaff(ctx context.Context, id string, in gateway.StaffInput) (*model.StaffMember, error) {
	return s.console.Update(ctx, id, in)
}

// DeleteStaff удаляет сотрудника.
func (s *Service) DeleteStaff(ctx context.Context, id string) error {
	return s.console.Delete(ctx, id)
}

// Preferences возвращает сохранённые настройки или настройки по умолчанию.
func (s *Service) Preferences(ctx context.Context) (model.Preferences, error) {
	raw, err := s.store.Get(ctx, store.KeyPreferences)
	if errors.Is(err, store.ErrNotFound) {
		return model.DefaultPreferences(), nil
	}
	if err != nil {
		return model.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}

	prefs := model.DefaultPreferences()
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		s.logger.Warn("stored preferences are corrupted", zap.Error(err))
		return model.DefaultPreferences(), nil
	}
	return prefs, nil
}

// SetPreferences сохраняет настройки. Настройки переживают выход из системы.
func (s *Service) SetPreferences(ctx context.Context, prefs model.Preferences) (model.Preferences, error) {
	errs := validation.FieldErrors{}
	errs.Check(prefs.Theme == model.ThemeLight || prefs.Theme == model.ThemeDark, "theme", "Theme must be light or dark")
	errs.Check(validation.IsValidCurrency(prefs.Currency), "currency", "Select a supported currency")
	if err := errs.Err(); err != nil {
		return model.Preferences{}, err
	}

	raw, err := json.Marshal(prefs)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.store.Set(ctx, store.KeyPreferences, string(raw)); err != nil {
		return model.Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return prefs, nil
}

// Notifications возвращает уведомления с идентификатором больше after.
func (s *Service) Notifications(after int64) []notify.Notification {
	return s.feed.Since(after)
}
