package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/notify"
	"github.com/mmeshcher/nexuspay-client/internal/store"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

// OTPResendCooldown: пауза перед повторной отправкой одноразового кода.
const OTPResendCooldown = 60 * time.Second

var (
	// ErrThrottled возвращается, пока не истекла задержка после неудачных попыток входа.
	ErrThrottled = errors.New("login attempts throttled")
	// ErrBusy возвращается, если предыдущая попытка входа ещё выполняется.
	ErrBusy = errors.New("operation already in progress")
	// ErrOTPCooldown возвращается при повторном запросе кода раньше времени.
	ErrOTPCooldown = errors.New("otp was sent recently")
	// ErrRoleMismatch возвращается, если сервер вернул пользователя с неожиданной ролью.
	ErrRoleMismatch = errors.New("account role does not match login portal")
	// ErrNotAuthenticated возвращается операциями, требующими сессии.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyAuthenticated возвращается входом и регистрацией при открытой сессии.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
)

// API описывает вызовы удалённого API, нужные сессии.
type API interface {
	Login(ctx context.Context, req gateway.LoginRequest) (*gateway.LoginResult, error)
	StaffLogin(ctx context.Context, req gateway.StaffLoginRequest) (*gateway.LoginResult, error)
	AdminLogin(ctx context.Context, req gateway.AdminLoginRequest) (*gateway.LoginResult, error)
	SendOTP(ctx context.Context, staffID, email string) (*gateway.SendOTPResult, error)
	Register(ctx context.Context, req gateway.RegisterRequest) (*gateway.LoginResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*model.User, error)
	Refresh(ctx context.Context) (*gateway.RefreshResult, error)
	ResetCSRF()
}

// Outcome: результат попытки входа. При MFARequired сессия не меняется,
// и вход нужно повторить с кодом.
type Outcome struct {
	MFARequired bool          `json:"mfaRequired"`
	HasEmail    *bool         `json:"hasEmail,omitempty"`
	Session     model.Session `json:"session"`
}

// Service выполняет сценарии входа, регистрации, восстановления и выхода поверх Manager.
type Service struct {
	api      API
	creds    *gateway.Credentials
	store    store.Store
	manager  *Manager
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time

	busy atomic.Bool

	restoreOnce sync.Once
	ready       chan struct{}

	otpMu   sync.Mutex
	otpNext map[string]time.Time
}

// Options: необязательные зависимости сервиса.
type Options struct {
	Notifier notify.Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewService создаёт сервис сессии. Учётные данные общие с клиентом API.
func NewService(api API, creds *gateway.Credentials, st store.Store, manager *Manager, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		api:      api,
		creds:    creds,
		store:    st,
		manager:  manager,
		notifier: notifier,
		logger:   logger,
		now:      now,
		ready:    make(chan struct{}),
		otpNext:  make(map[string]time.Time),
	}
}

// Manager возвращает менеджер состояния.
func (s *Service) Manager() *Manager {
	return s.manager
}

// CustomerLogin: данные входа клиента.
type CustomerLogin struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	AccountNumber   string `json:"accountNumber"`
	Password        string `json:"password"`
	OTP             string `json:"otp,omitempty"`
}

// StaffLogin: данные входа сотрудника.
type StaffLogin struct {
	StaffID  string `json:"staffId"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

// AdminLogin: данные входа администратора.
type AdminLogin struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
	OTP             string `json:"otp,omitempty"`
}

// Registration: данные регистрации клиента.
type Registration struct {
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	AccountNumber string `json:"accountNumber"`
	IDNumber      string `json:"idNumber"`
	Password      string `json:"password"`
}

func checkOTP(errs validation.FieldErrors, otp string) {
	if otp != "" {
		errs.Check(validation.IsValidOTP(otp), "otp", "verification code must be 6 digits")
	}
}

// Login выполняет вход клиента.
func (s *Service) Login(ctx context.Context, in CustomerLogin) (Outcome, error) {
	errs := validation.FieldErrors{}
	errs.Check(strings.TrimSpace(in.UsernameOrEmail) != "", "usernameOrEmail", "username or email is required")
	errs.Check(validation.IsValidAccountNumber(in.AccountNumber), "accountNumber", "invalid account number")
	errs.Check(in.Password != "", "password", "password is required")
	checkOTP(errs, in.OTP)
	if err := errs.Err(); err != nil {
		return Outcome{}, err
	}

	return s.attempt(ctx, model.RoleCustomer, func(ctx context.Context) (*gateway.LoginResult, error) {
		return s.api.Login(ctx, gateway.LoginRequest{
			UsernameOrEmail: strings.TrimSpace(in.UsernameOrEmail),
			AccountNumber:   in.AccountNumber,
			Password:        in.Password,
			OTP:             in.OTP,
		})
	})
}

// LoginStaff выполняет вход сотрудника.
func (s *Service) LoginStaff(ctx context.Context, in StaffLogin) (Outcome, error) {
	errs := validation.FieldErrors{}
	errs.Check(validation.IsValidStaffID(in.StaffID), "staffId", "invalid staff id")
	errs.Check(in.Password != "", "password", "password is required")
	checkOTP(errs, in.OTP)
	if err := errs.Err(); err != nil {
		return Outcome{}, err
	}

	return s.attempt(ctx, model.RoleStaff, func(ctx context.Context) (*gateway.LoginResult, error) {
		return s.api.StaffLogin(ctx, gateway.StaffLoginRequest(in))
	})
}

// LoginAdmin выполняет вход администратора.
func (s *Service) LoginAdmin(ctx context.Context, in AdminLogin) (Outcome, error) {
	errs := validation.FieldErrors{}
	errs.Check(strings.TrimSpace(in.UsernameOrEmail) != "", "usernameOrEmail", "username or email is required")
	errs.Check(in.Password != "", "password", "password is required")
	checkOTP(errs, in.OTP)
	if err := errs.Err(); err != nil {
		return Outcome{}, err
	}

	return s.attempt(ctx, model.RoleAdmin, func(ctx context.Context) (*gateway.LoginResult, error) {
		return s.api.AdminLogin(ctx, gateway.AdminLoginRequest{
			UsernameOrEmail: strings.TrimSpace(in.UsernameOrEmail),
			Password:        in.Password,
			OTP:             in.OTP,
		})
	})
}

func (s *Service) attempt(ctx context.Context, role model.Role, call func(context.Context) (*gateway.LoginResult, error)) (Outcome, error) {
	if s.manager.IsAuthenticated() {
		return Outcome{}, ErrAlreadyAuthenticated
	}
	if wait := s.manager.RetryAfter(); wait > 0 {
		return Outcome{}, fmt.Errorf("%w: retry in %s", ErrThrottled, wait.Round(time.Millisecond))
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrBusy
	}
	defer s.busy.Store(false)

	res, err := call(ctx)
	if err != nil {
		next := s.manager.LoginFailed()
		s.logger.Info("login failed",
			zap.String("role", string(role)),
			zap.String("kind", string(gateway.KindOf(err))),
			zap.Time("next_allowed_at", next),
		)
		if role != model.RoleCustomer {
			s.notifier.Notify(notify.SeverityError, "Login failed - security event logged")
		}
		return Outcome{}, err
	}

	if res.MFARequired {
		return Outcome{MFARequired: true, HasEmail: res.HasEmail, Session: s.manager.Snapshot()}, nil
	}

	if res.User.Role != role {
		s.manager.LoginFailed()
		return Outcome{}, fmt.Errorf("%w: got %s", ErrRoleMismatch, res.User.Role)
	}

	first := false
	if role == model.RoleCustomer {
		first = FirstLogin(res.IsFirstLogin, res.User.CreatedAt, s.now())
	}
	if err := s.establish(ctx, res.AccessToken, *res.User, first); err != nil {
		return Outcome{}, err
	}

	if res.UnknownDevice {
		s.notifier.Notify(notify.SeverityWarning, "Login from unknown device detected")
	}
	return Outcome{Session: s.manager.Snapshot()}, nil
}

// Register регистрирует клиента и сразу открывает сессию.
func (s *Service) Register(ctx context.Context, in Registration) (model.Session, error) {
	errs := validation.FieldErrors{}
	errs.Check(validation.IsValidFullName(in.FullName), "fullName", "invalid full name")
	errs.Check(validation.IsValidEmail(in.Email), "email", "invalid email")
	errs.Check(validation.IsValidAccountNumber(in.AccountNumber), "accountNumber", "invalid account number")
	errs.Check(validation.IsValidIDNumber(in.IDNumber), "idNumber", "id number must be 13 digits")
	errs.Check(validation.IsStrongPassword(in.Password), "password", "password is too weak")
	if err := errs.Err(); err != nil {
		return model.Session{}, err
	}

	if s.manager.IsAuthenticated() {
		return model.Session{}, ErrAlreadyAuthenticated
	}
	if !s.busy.CompareAndSwap(false, true) {
		return model.Session{}, ErrBusy
	}
	defer s.busy.Store(false)

	res, err := s.api.Register(ctx, gateway.RegisterRequest(in))
	if err != nil {
		return model.Session{}, err
	}

	first := true
	if res.IsFirstLogin != nil {
		first = *res.IsFirstLogin
	}
	if err := s.establish(ctx, res.AccessToken, *res.User, first); err != nil {
		return model.Session{}, err
	}
	return s.manager.Snapshot(), nil
}

func (s *Service) establish(ctx context.Context, token string, user model.User, first bool) error {
	if err := s.creds.Set(ctx, token); err != nil {
		return err
	}
	s.api.ResetCSRF()
	s.cacheUser(ctx, user)
	s.clearOTPCooldowns()
	s.manager.LoginSuccess(user, first)

	s.logger.Info("session established",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.Bool("first_login", first),
	)
	return nil
}

// FirstLogin определяет признак первого входа: явный флаг сервера важнее сравнения
// календарной даты создания учётной записи с сегодняшней в часовом поясе now.
func FirstLogin(serverFlag *bool, createdAt, now time.Time) bool {
	if serverFlag != nil {
		return *serverFlag
	}
	cy, cm, cd := createdAt.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	return cy == ny && cm == nm && cd == nd
}

// SendOTP просит сервер отправить код сотруднику. Повтор возможен не раньше OTPResendCooldown.
func (s *Service) SendOTP(ctx context.Context, staffID, email string) (*gateway.SendOTPResult, error) {
	errs := validation.FieldErrors{}
	errs.Check(validation.IsValidStaffID(staffID), "staffId", "invalid staff id")
	if email != "" {
		errs.Check(validation.IsValidEmail(email), "email", "please enter a valid email address")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if wait := s.OTPCooldown(staffID); wait > 0 {
		return nil, fmt.Errorf("%w: retry in %s", ErrOTPCooldown, wait.Round(time.Second))
	}

	res, err := s.api.SendOTP(ctx, staffID, email)
	if err != nil {
		return nil, err
	}

	if res.Sent {
		s.otpMu.Lock()
		s.otpNext[staffID] = s.now().Add(OTPResendCooldown)
		s.otpMu.Unlock()
	}
	return res, nil
}

// OTPCooldown возвращает оставшееся время до повторной отправки кода.
func (s *Service) OTPCooldown(staffID string) time.Duration {
	s.otpMu.Lock()
	defer s.otpMu.Unlock()
	next, ok := s.otpNext[staffID]
	if !ok {
		return 0
	}
	return max(next.Sub(s.now()), 0)
}

func (s *Service) clearOTPCooldowns() {
	s.otpMu.Lock()
	clear(s.otpNext)
	s.otpMu.Unlock()
}

// Restore восстанавливает сессию из сохранённых учётных данных. Сетевой вызов выполняется
// не более одного раза за время жизни процесса, повторные вызовы ждут первого.
func (s *Service) Restore(ctx context.Context) {
	s.restoreOnce.Do(func() {
		defer close(s.ready)
		s.restore(ctx)
	})
}

// Ready закрывается после завершения Restore.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Restored сообщает, завершилось ли восстановление.
func (s *Service) Restored() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *Service) restore(ctx context.Context) {
	ok, err := s.creds.Load(ctx)
	if err != nil {
		s.logger.Error("load stored credential error", zap.Error(err))
		s.forget(ctx)
		return
	}
	if !ok || !s.hasCachedUser(ctx) {
		s.logger.Info("no stored session")
		s.forget(ctx)
		return
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		s.logger.Info("stored session rejected", zap.String("kind", string(gateway.KindOf(err))))
		s.forget(ctx)
		return
	}

	s.cacheUser(ctx, *user)
	s.manager.LoginSuccess(*user, false)
	s.logger.Info("session restored", zap.String("user_id", user.ID))
}

// forget стирает локальные следы сессии без обращения к сети.
func (s *Service) forget(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := s.creds.Clear(ctx); err != nil {
		s.logger.Error("clear credential error", zap.Error(err))
	}
	if err := s.store.Delete(ctx, store.KeyUser); err != nil {
		s.logger.Error("delete cached user error", zap.Error(err))
	}
	s.api.ResetCSRF()
}

func (s *Service) cacheUser(ctx context.Context, user model.User) {
	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Error("encode cached user error", zap.Error(err))
		return
	}
	if err := s.store.Set(ctx, store.KeyUser, string(data)); err != nil {
		s.logger.Error("cache user error", zap.Error(err))
	}
}

func (s *Service) hasCachedUser(ctx context.Context) bool {
	raw, err := s.store.Get(ctx, store.KeyUser)
	if err != nil {
		return false
	}
	var u model.User
	return json.Unmarshal([]byte(raw), &u) == nil && u.ID != ""
}

// Refresh продлевает сессию на сервере и заменяет токен. Ответ, пришедший после выхода,
// отбрасывается с ErrNotAuthenticated. Если за время запроса открылась новая сессия,
// ответ тоже отбрасывается, а её свежий токен остаётся.
func (s *Service) Refresh(ctx context.Context) error {
	old := s.creds.Token()
	if !s.manager.IsAuthenticated() || old == "" {
		return ErrNotAuthenticated
	}
	res, err := s.api.Refresh(ctx)
	if err != nil {
		return err
	}
	if !s.manager.IsAuthenticated() {
		s.logger.Info("refresh result discarded after logout")
		return ErrNotAuthenticated
	}
	replaced, err := s.creds.Replace(ctx, old, res.AccessToken)
	if err != nil {
		return err
	}
	if !replaced {
		s.logger.Info("refresh result discarded, credential changed")
		if !s.manager.IsAuthenticated() {
			return ErrNotAuthenticated
		}
		return nil
	}
	if res.User != nil {
		s.cacheUser(ctx, *res.User)
		s.manager.UpdateUser(*res.User)
	}
	return nil
}

// Logout завершает сессию. Вызов сервера выполняется по возможности, локальное состояние
// очищается в любом случае. Настройки пользователя сохраняются.
func (s *Service) Logout(ctx context.Context, reason LogoutReason) {
	if s.creds.Present() && reason != ReasonUnauthorized {
		if err := s.api.Logout(ctx); err != nil {
			s.logger.Warn("server logout failed", zap.Error(err))
		}
	}

	s.forget(ctx)
	s.clearOTPCooldowns()
	if s.manager.Logout(reason) {
		s.logger.Info("logged out", zap.String("reason", string(reason)))
	}
}

// HandleUnauthenticated вызывается клиентом API после ответа 401. Не обращается к сети.
func (s *Service) HandleUnauthenticated() {
	ctx := context.Background()
	if err := s.store.Delete(ctx, store.KeyUser); err != nil {
		s.logger.Error("delete cached user error", zap.Error(err))
	}
	s.api.ResetCSRF()
	s.clearOTPCooldowns()
	if s.manager.Logout(ReasonUnauthorized) {
		s.logger.Info("session cleared after unauthenticated response")
	}
}
