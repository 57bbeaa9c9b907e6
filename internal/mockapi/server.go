// Package mockapi содержит встроенную реализацию удалённого API NexusPay для локального режима и тестов.
package mockapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/nexuspay-client/internal/model"
)

// Учётные данные встроенных пользователей.
const (
	CustomerEmail         = "dev@nexuspay.dev"
	CustomerUsername      = "devuser"
	CustomerNoMFAEmail    = "test@nexuspay.dev"
	CustomerAccountNumber = "1234567890"
	StaffID               = "STF-001"
	StaffEmail            = "staff@nexuspay.dev"
	AdminEmail            = "admin@nexuspay.dev"
	Password              = "DevPassw0rd!2025"
	ValidOTP              = "123456"
	CSRFToken             = "mock-csrf-token"
)

const defaultTokenTTL = 15 * time.Minute

// Options: параметры встроенного API.
type Options struct {
	// Now подменяет часы сервера.
	Now func() time.Time
	// TokenTTL: срок действия выдаваемых токенов.
	TokenTTL time.Duration
	// CustomerCreatedAt: дата регистрации встроенного клиента с MFA.
	CustomerCreatedAt time.Time
	// AssertFirstLogin включает явный флаг isFirstLogin в ответах на вход.
	AssertFirstLogin bool
	// Secret подписывает токены.
	Secret string
}

type account struct {
	user          model.User
	username      string
	accountNumber string
	staffID       string
	passwordHash  []byte
	mfa           bool
	active        bool
}

type fault struct {
	status  int
	message string
}

type claimsKey struct{}

// Server: встроенный удалённый API.
type Server struct {
	mu       sync.Mutex
	now      func() time.Time
	ttl      time.Duration
	secret   []byte
	assertFL bool

	accounts      map[string]*account
	revoked       map[string]bool
	payments      map[string]*payment
	idempotency   map[string]string
	beneficiaries map[string]*beneficiary
	otpSent       map[string]bool

	calls  map[string]int
	faults map[string]fault

	router chi.Router
}

// New создаёт встроенный API с набором тестовых пользователей.
func New(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	secret := opts.Secret
	if secret == "" {
		secret = "nexuspay-mock-secret"
	}
	createdAt := opts.CustomerCreatedAt
	if createdAt.IsZero() {
		createdAt = now().AddDate(0, -1, 0)
	}

	s := &Server{
		now:           now,
		ttl:           ttl,
		secret:        []byte(secret),
		assertFL:      opts.AssertFirstLogin,
		accounts:      make(map[string]*account),
		revoked:       make(map[string]bool),
		payments:      make(map[string]*payment),
		idempotency:   make(map[string]string),
		beneficiaries: make(map[string]*beneficiary),
		otpSent:       make(map[string]bool),
		calls:         make(map[string]int),
		faults:        make(map[string]fault),
	}

	s.addAccount(&account{
		user:          model.User{FullName: "Dev User", Email: CustomerEmail, Role: model.RoleCustomer, CreatedAt: createdAt},
		username:      CustomerUsername,
		accountNumber: CustomerAccountNumber,
		mfa:           true,
	})
	s.addAccount(&account{
		user:          model.User{FullName: "Test User", Email: CustomerNoMFAEmail, Role: model.RoleCustomer, CreatedAt: now().AddDate(0, 0, -7)},
		username:      "testuser",
		accountNumber: CustomerAccountNumber,
	})
	s.addAccount(&account{
		user:    model.User{FullName: "Staff Member", Email: StaffEmail, Role: model.RoleStaff, CreatedAt: now().AddDate(-1, 0, 0)},
		staffID: StaffID,
		mfa:     true,
	})
	s.addAccount(&account{
		user:     model.User{FullName: "Admin User", Email: AdminEmail, Role: model.RoleAdmin, CreatedAt: now().AddDate(-1, 0, 0)},
		username: "admin",
	})

	s.router = s.routes()
	return s
}

func newID() string {
	return uuid.NewString()
}

func (s *Server) addAccount(a *account) {
	a.user.ID = newID()
	a.active = true
	a.passwordHash = mustHash(Password)
	s.accounts[a.user.ID] = a
}

func mustHash(password string) []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return hash
}

// ServeHTTP реализует http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext заставляет следующий запрос method+path завершиться с указанным статусом.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = fault{status: status, message: message}
}

// Calls возвращает число запросов method+path, дошедших до сервера.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// PaymentStatus возвращает статус платежа по идентификатору.
func (s *Server) PaymentStatus(id string) (model.PaymentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return "", false
	}
	return p.Status, true
}

// OTPRequested сообщает, запрашивался ли код для сотрудника.
func (s *Server) OTPRequested(staffID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.findAccount(func(a *account) bool { return a.staffID == staffID })
	return acc != nil && s.otpSent[acc.user.ID]
}

// PaymentCount возвращает число созданных платежей.
func (s *Server) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.faultInjection)

	r.Get("/csrf", s.csrf)

	r.Group(func(r chi.Router) {
		r.Use(s.requireCSRF)

		r.Post("/auth/login", s.login)
		r.Post("/auth/staff-login", s.staffLogin)
		r.Post("/auth/admin-login", s.adminLogin)
		r.Post("/auth/send-otp", s.sendOTP)
		r.Post("/auth/register", s.register)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireCSRF)
		r.Use(s.requireAuth)

		r.Post("/auth/logout", s.logout)
		r.Get("/auth/me", s.me)
		r.Post("/auth/refresh", s.refresh)

		r.Post("/payments", s.createPayment)
		r.Post("/payments/international", s.createInternational)
		r.Get("/payments", s.listPayments)
		r.Put("/payments/{id}/beneficiary", s.updateBeneficiary)
		r.Post("/payments/{id}/submit", s.submitPayment)

		r.Get("/beneficiaries", s.listBeneficiaries)
		r.Post("/beneficiaries", s.createBeneficiary)
		r.Delete("/beneficiaries/{id}", s.deleteBeneficiary)

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(model.RoleStaff))

			r.Get("/payments/staff/{queue}", s.staffQueue)
			r.Post("/payments/{id}/verify", s.verifyPayment)
			r.Post("/payments/{id}/submit-swift", s.submitSwift)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(model.RoleAdmin))

			r.Get("/admin/staff", s.listStaff)
			r.Post("/admin/staff", s.createStaff)
			r.Patch("/admin/staff/{id}", s.updateStaff)
			r.Delete("/admin/staff/{id}", s.deleteStaff)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})

	return r
}

func (s *Server) faultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls[key]++
		f, ok := s.faults[key]
		if ok {
			delete(s.faults, key)
		}
		s.mu.Unlock()

		if ok {
			writeError(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			if r.Header.Get("X-CSRF-Token") != CSRFToken {
				writeError(w, http.StatusForbidden, "invalid csrf token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := s.parseToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		s.mu.Lock()
		revoked := s.revoked[raw]
		acc, exists := s.accounts[claims.Subject]
		s.mu.Unlock()

		if revoked || !exists || !acc.active {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, authInfo{userID: claims.Subject, role: claims.Role, token: raw})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authFrom(r).role != role {
				writeError(w, http.StatusForbidden, "insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type authInfo struct {
	userID string
	role   model.Role
	token  string
}

func authFrom(r *http.Request) authInfo {
	info, _ := r.Context().Value(claimsKey{}).(authInfo)
	return info
}

func (s *Server) csrf(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"token": CSRFToken})
}

type envelope struct {
	Version int    `json:"version"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Version: 1, Success: true, Data: data})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, envelope{Version: 1, Success: true})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Version: 1, Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) bool {
	if r.Body == nil {
		return false
	}
	return json.NewDecoder(r.Body).Decode(v) == nil
}
