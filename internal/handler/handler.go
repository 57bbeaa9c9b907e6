// Package handler содержит локальный HTTP API клиента NexusPay для оболочки интерфейса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/nexuspay-client/internal/expiry"
	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/notify"
	"github.com/mmeshcher/nexuspay-client/internal/service"
	"github.com/mmeshcher/nexuspay-client/internal/session"
	"github.com/mmeshcher/nexuspay-client/internal/staff"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
	"github.com/mmeshcher/nexuspay-client/internal/wizard"
)

// Service определяет контракт фасада, используемого HTTP-обработчиками.
type Service interface {
	Ready() <-chan struct{}
	Session() model.Session
	Guard(access session.Access) session.Decision

	Login(ctx context.Context, in session.CustomerLogin) (session.Outcome, error)
	LoginStaff(ctx context.Context, in session.StaffLogin) (session.Outcome, error)
	LoginAdmin(ctx context.Context, in session.AdminLogin) (session.Outcome, error)
	Register(ctx context.Context, in session.Registration) (model.Session, error)
	SendOTP(ctx context.Context, staffID, email string) (*gateway.SendOTPResult, error)
	Logout(ctx context.Context) string
	ExtendSession(ctx context.Context) error
	Activity()
	Expiry() expiry.State

	StartWizard(ctx context.Context, mode wizard.Mode) wizard.View
	Wizard() (*wizard.Wizard, error)
	CloseWizard()

	ListPayments(ctx context.Context, page, limit int) (*model.PaymentPage, error)
	ListBeneficiaries(ctx context.Context) ([]model.SavedBeneficiary, error)
	CreateBeneficiary(ctx context.Context, in gateway.NewBeneficiary) (*model.SavedBeneficiary, error)
	DeleteBeneficiary(ctx context.Context, id string) error

	StaffQueue(ctx context.Context, queue gateway.Queue, page, limit int) (*model.PaymentPage, error)
	VerifyPayment(ctx context.Context, id string, action gateway.VerifyAction) (*gateway.PaymentRef, error)
	SubmitToSwift(ctx context.Context, id string) (*gateway.PaymentRef, error)
	ListStaff(ctx context.Context, search string) ([]model.StaffMember, error)
	CreateStaff(ctx context.Context, in gateway.StaffInput) (*model.StaffMember, error)
	UpdateStaff(ctx context.Context, id string, in gateway.StaffInput) (*model.StaffMember, error)
	DeleteStaff(ctx context.Context, id string) error

	Preferences(ctx context.Context) (model.Preferences, error)
	SetPreferences(ctx context.Context, prefs model.Preferences) (model.Preferences, error)
	Notifications(after int64) []notify.Notification
}

// Handler реализует HTTP-обработчики локального API.
type Handler struct {
	service Service
	logger  *zap.Logger
	metrics http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// metrics может быть nil, тогда /metrics не регистрируется.
func NewHandler(s Service, logger *zap.Logger, metrics http.Handler) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: s,
		logger:  logger,
		metrics: metrics,
	}
}

type errorResponse struct {
	Message string                 `json:"message"`
	Errors  validation.FieldErrors `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

// writeError переводит ошибку компонентов в HTTP-статус. fallback задаёт текст для ошибок,
// сообщение сервера по которым показывать нельзя.
func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	var fe validation.FieldErrors
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Please correct the highlighted fields.", Errors: fe})

	case errors.Is(err, session.ErrThrottled):
		w.Header().Set("Retry-After", strconv.Itoa(h.retryAfter()))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: "Too many login attempts. Please wait before trying again."})
	case errors.Is(err, session.ErrOTPCooldown):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: "A code was sent recently. Please wait before requesting another."})

	case errors.Is(err, session.ErrBusy), errors.Is(err, wizard.ErrBusy), errors.Is(err, staff.ErrInFlight):
		writeJSON(w, http.StatusConflict, errorResponse{Message: "Request already in progress."})
	case errors.Is(err, wizard.ErrWrongStep), errors.Is(err, wizard.ErrCompleted):
		writeJSON(w, http.StatusConflict, errorResponse{Message: err.Error()})

	case errors.Is(err, session.ErrAlreadyAuthenticated):
		writeJSON(w, http.StatusConflict, errorResponse{Message: "Already signed in. Sign out first."})
	case errors.Is(err, session.ErrRoleMismatch):
		writeJSON(w, http.StatusForbidden, errorResponse{Message: "This account cannot sign in here."})
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, expiry.ErrInactive):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Not signed in."})

	case errors.Is(err, service.ErrNoWizard), errors.Is(err, wizard.ErrClosed), errors.Is(err, wizard.ErrBeneficiaryNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, wizard.ErrInvalidMode):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})

	default:
		h.writeGatewayError(w, err, fallback)
	}
}

func (h *Handler) writeGatewayError(w http.ResponseWriter, err error, fallback string) {
	status, ok := gatewayStatus(gateway.KindOf(err))
	if !ok {
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, status, errorResponse{Message: http.StatusText(status)})
		return
	}
	writeJSON(w, status, errorResponse{Message: gateway.UserMessage(err, fallback)})
}

// gatewayStatus возвращает HTTP-статус для вида ошибки удалённого API.
// ok ложно, если ошибка пришла не из шлюза.
func gatewayStatus(kind gateway.Kind) (status int, ok bool) {
	switch kind {
	case gateway.KindValidation:
		return http.StatusBadRequest, true
	case gateway.KindUnauthenticated:
		return http.StatusUnauthorized, true
	case gateway.KindForbidden:
		return http.StatusForbidden, true
	case gateway.KindNotFound:
		return http.StatusNotFound, true
	case gateway.KindConflict:
		return http.StatusConflict, true
	case gateway.KindNetwork, gateway.KindServer, gateway.KindInvalidResponse, gateway.KindInsecureTransport:
		return http.StatusBadGateway, true
	}
	return http.StatusInternalServerError, false
}

// retryAfter возвращает число секунд до следующей разрешённой попытки входа, не меньше 1.
func (h *Handler) retryAfter() int {
	next := h.service.Session().NextAllowedLoginAt
	if next == nil {
		return 1
	}
	secs := int(math.Ceil(time.Until(*next).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

// Healthz сообщает, что процесс жив.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// GetPreferences возвращает настройки интерфейса.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.service.Preferences(r.Context())
	if err != nil {
		h.writeError(w, err, "Could not load preferences.")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// PutPreferences сохраняет настройки интерфейса.
func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var req model.Preferences
	if !decode(w, r, &req) {
		return
	}
	prefs, err := h.service.SetPreferences(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "Could not save preferences.")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// GetNotifications возвращает уведомления с идентификатором больше after.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		after = n
	}
	items := h.service.Notifications(after)
	if items == nil {
		items = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}
