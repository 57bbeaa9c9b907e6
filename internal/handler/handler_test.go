package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
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

type stubService struct {
	ready   chan struct{}
	session model.Session

	loginIn  session.CustomerLogin
	loginOut session.Outcome
	loginErr error

	logouts int

	wizard *wizard.Wizard

	payments    *model.PaymentPage
	paymentsErr error

	verifyRef *gateway.PaymentRef
	verifyErr error

	createBeneficiaryErr error

	notifications []notify.Notification
	notifyAfter   int64
}

func newStubService() *stubService {
	ready := make(chan struct{})
	close(ready)
	return &stubService{ready: ready}
}

func (s *stubService) Ready() <-chan struct{} { return s.ready }

func (s *stubService) Session() model.Session { return s.session }

func (s *stubService) Guard(access session.Access) session.Decision {
	return session.Guard(s.session, access)
}

func (s *stubService) Login(ctx context.Context, in session.CustomerLogin) (session.Outcome, error) {
	s.loginIn = in
	return s.loginOut, s.loginErr
}

func (s *stubService) LoginStaff(ctx context.Context, in session.StaffLogin) (session.Outcome, error) {
	return s.loginOut, s.loginErr
}

func (s *stubService) LoginAdmin(ctx context.Context, in session.AdminLogin) (session.Outcome, error) {
	return s.loginOut, s.loginErr
}

func (s *stubService) Register(ctx context.Context, in session.Registration) (model.Session, error) {
	return s.session, nil
}

func (s *stubService) SendOTP(ctx context.Context, staffID, email string) (*gateway.SendOTPResult, error) {
	return &gateway.SendOTPResult{HasEmail: true, Sent: true}, nil
}

func (s *stubService) Logout(ctx context.Context) string {
	s.logouts++
	return session.RouteLogin
}

func (s *stubService) ExtendSession(ctx context.Context) error {
	if !s.session.IsAuthenticated {
		return expiry.ErrInactive
	}
	return nil
}

func (s *stubService) Activity() {}

func (s *stubService) Expiry() expiry.State { return expiry.State{} }

func (s *stubService) StartWizard(ctx context.Context, mode wizard.Mode) wizard.View {
	return s.wizard.View()
}

func (s *stubService) Wizard() (*wizard.Wizard, error) {
	if s.wizard == nil || s.wizard.Closed() {
		return nil, service.ErrNoWizard
	}
	return s.wizard, nil
}

func (s *stubService) CloseWizard() {
	if s.wizard != nil {
		s.wizard.Close()
	}
}

func (s *stubService) ListPayments(ctx context.Context, page, limit int) (*model.PaymentPage, error) {
	return s.payments, s.paymentsErr
}

func (s *stubService) ListBeneficiaries(ctx context.Context) ([]model.SavedBeneficiary, error) {
	return nil, nil
}

func (s *stubService) CreateBeneficiary(ctx context.Context, in gateway.NewBeneficiary) (*model.SavedBeneficiary, error) {
	if s.createBeneficiaryErr != nil {
		return nil, s.createBeneficiaryErr
	}
	return &model.SavedBeneficiary{ID: "b-1", FullName: in.FullName, AccountNumberMasked: validation.MaskAccountNumber(in.AccountNumber)}, nil
}

func (s *stubService) DeleteBeneficiary(ctx context.Context, id string) error { return nil }

func (s *stubService) StaffQueue(ctx context.Context, queue gateway.Queue, page, limit int) (*model.PaymentPage, error) {
	return &model.PaymentPage{Page: 1, Limit: 50}, nil
}

func (s *stubService) VerifyPayment(ctx context.Context, id string, action gateway.VerifyAction) (*gateway.PaymentRef, error) {
	return s.verifyRef, s.verifyErr
}

func (s *stubService) SubmitToSwift(ctx context.Context, id string) (*gateway.PaymentRef, error) {
	return s.verifyRef, s.verifyErr
}

func (s *stubService) ListStaff(ctx context.Context, search string) ([]model.StaffMember, error) {
	return nil, nil
}

func (s *stubService) CreateStaff(ctx context.Context, in gateway.StaffInput) (*model.StaffMember, error) {
	return &model.StaffMember{ID: "s-1", FullName: in.FullName, StaffID: in.StaffID}, nil
}

func (s *stubService) UpdateStaff(ctx context.Context, id string, in gateway.StaffInput) (*model.StaffMember, error) {
	return &model.StaffMember{ID: id, FullName: in.FullName}, nil
}

func (s *stubService) DeleteStaff(ctx context.Context, id string) error { return nil }

func (s *stubService) Preferences(ctx context.Context) (model.Preferences, error) {
	return model.DefaultPreferences(), nil
}

func (s *stubService) SetPreferences(ctx context.Context, prefs model.Preferences) (model.Preferences, error) {
	return prefs, nil
}

func (s *stubService) Notifications(after int64) []notify.Notification {
	s.notifyAfter = after
	return s.notifications
}

// wizardAPI отвечает на создание черновика заранее заданной ошибкой.
type wizardAPI struct {
	createErr error
}

func (a *wizardAPI) CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (*gateway.PaymentRef, error) {
	if a.createErr != nil {
		return nil, a.createErr
	}
	return &gateway.PaymentRef{PaymentID: "p-1", Status: model.PaymentStatusDraft}, nil
}

func (a *wizardAPI) UpdateBeneficiary(ctx context.Context, paymentID string, req gateway.BeneficiaryUpdate) error {
	return nil
}

func (a *wizardAPI) SubmitPayment(ctx context.Context, paymentID string, req gateway.SubmitPaymentRequest) (*gateway.PaymentRef, error) {
	return &gateway.PaymentRef{PaymentID: paymentID, Status: model.PaymentStatusPendingVerification}, nil
}

func (a *wizardAPI) SubmitInternational(ctx context.Context, req gateway.InternationalPaymentRequest) (*gateway.PaymentRef, error) {
	return &gateway.PaymentRef{PaymentID: "p-1", Status: model.PaymentStatusPendingVerification}, nil
}

func (a *wizardAPI) ListBeneficiaries(ctx context.Context) ([]model.SavedBeneficiary, error) {
	return nil, nil
}

func customer() model.Session {
	return model.Session{
		IsAuthenticated: true,
		User:            &model.User{ID: "u-1", FullName: "Dev User", Role: model.RoleCustomer},
	}
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger, nil)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func TestLogin_MFARequired(t *testing.T) {
	svc := newStubService()
	svc.loginOut = session.Outcome{MFARequired: true}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(session.CustomerLogin{UsernameOrEmail: "dev", AccountNumber: "12345678", Password: "secret"})
	req := httptest.NewRequest(http.MethodPost, "/api/session/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var out session.Outcome
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.MFARequired {
		t.Fatalf("mfaRequired = false, want true")
	}
}

func TestLogin_BadJSON(t *testing.T) {
	h := newTestHandler(t, newStubService())

	req := httptest.NewRequest(http.MethodPost, "/api/session/login", strings.NewReader("{"))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestLogin_ErrorMapping(t *testing.T) {
	next := time.Now().Add(4 * time.Second)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "invalid credentials",
			err:     &gateway.Error{Kind: gateway.KindUnauthenticated, Status: 401, Message: "Invalid username or password"},
			status:  http.StatusUnauthorized,
			message: loginFailed,
		},
		{
			name:    "server validation message is shown verbatim",
			err:     &gateway.Error{Kind: gateway.KindValidation, Status: 400, Message: "Account number is not registered"},
			status:  http.StatusBadRequest,
			message: "Account number is not registered",
		},
		{
			name:    "server failure hides details",
			err:     &gateway.Error{Kind: gateway.KindServer, Status: 500, Message: "stack trace"},
			status:  http.StatusBadGateway,
			message: loginFailed,
		},
		{
			name:   "throttled",
			err:    session.ErrThrottled,
			status: http.StatusTooManyRequests,
		},
		{
			name:   "in progress",
			err:    session.ErrBusy,
			status: http.StatusConflict,
		},
		{
			name:   "wrong portal",
			err:    session.ErrRoleMismatch,
			status: http.StatusForbidden,
		},
		{
			name:   "already signed in",
			err:    session.ErrAlreadyAuthenticated,
			status: http.StatusConflict,
		},
		{
			name:   "client validation",
			err:    validation.FieldErrors{"password": "Password is required"},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStubService()
			svc.loginErr = tt.err
			svc.session.NextAllowedLoginAt = &next
			h := newTestHandler(t, svc)

			res := do(t, h.SetupRouter(), http.MethodPost, "/api/session/login", session.CustomerLogin{UsernameOrEmail: "dev"})
			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}

			var body errorResponse
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.message != "" && body.Message != tt.message {
				t.Fatalf("message = %q, want %q", body.Message, tt.message)
			}
			if tt.status == http.StatusTooManyRequests {
				if ra := res.Header.Get("Retry-After"); ra != "4" && ra != "5" {
					t.Fatalf("Retry-After = %q, want about 4", ra)
				}
			}
		})
	}
}

func TestRouter_NotReady(t *testing.T) {
	svc := newStubService()
	svc.ready = make(chan struct{})
	h := newTestHandler(t, svc)

	res := do(t, h.SetupRouter(), http.MethodGet, "/api/session", nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}

	res = do(t, h.SetupRouter(), http.MethodGet, "/healthz", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestRouter_Guards(t *testing.T) {
	tests := []struct {
		name    string
		session model.Session
		method  string
		path    string
		status  int
	}{
		{name: "payments without session", method: http.MethodGet, path: "/api/payments", status: http.StatusUnauthorized},
		{name: "payments as customer", session: customer(), method: http.MethodGet, path: "/api/payments", status: http.StatusOK},
		{name: "staff queue as customer", session: customer(), method: http.MethodGet, path: "/api/staff/queue", status: http.StatusForbidden},
		{name: "admin console as customer", session: customer(), method: http.MethodGet, path: "/api/admin/staff", status: http.StatusForbidden},
		{name: "preferences are open", method: http.MethodGet, path: "/api/preferences", status: http.StatusOK},
		{name: "guard decision is open", method: http.MethodGet, path: "/api/guard/protected", status: http.StatusOK},
		{name: "unknown guard", method: http.MethodGet, path: "/api/guard/everyone", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStubService()
			svc.session = tt.session
			svc.payments = &model.PaymentPage{Page: 1, Limit: 20}
			h := newTestHandler(t, svc)

			res := do(t, h.SetupRouter(), tt.method, tt.path, nil)
			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}
		})
	}
}

func TestRouter_SignInRoutesWhileSignedIn(t *testing.T) {
	paths := []string{
		"/api/session/login",
		"/api/session/staff-login",
		"/api/session/admin-login",
		"/api/session/register",
		"/api/session/send-otp",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			svc := newStubService()
			svc.session = customer()
			h := newTestHandler(t, svc)

			res := do(t, h.SetupRouter(), http.MethodPost, path, session.CustomerLogin{UsernameOrEmail: "dev"})
			if res.StatusCode != http.StatusConflict {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
			}
			var d session.Decision
			if err := json.NewDecoder(res.Body).Decode(&d); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if d.Redirect != session.RouteDashboard {
				t.Fatalf("redirect = %q, want %q", d.Redirect, session.RouteDashboard)
			}
			if svc.loginIn.UsernameOrEmail != "" {
				t.Fatalf("login reached the service")
			}
		})
	}
}

func TestStaffQueue_UnknownQueue(t *testing.T) {
	svc := newStubService()
	svc.session = model.Session{IsAuthenticated: true, User: &model.User{ID: "s-1", Role: model.RoleStaff}}
	h := newTestHandler(t, svc)

	res := do(t, h.SetupRouter(), http.MethodGet, "/api/staff/archive", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}

	res = do(t, h.SetupRouter(), http.MethodGet, "/api/staff/verified", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestVerifyPayment(t *testing.T) {
	svc := newStubService()
	svc.session = model.Session{IsAuthenticated: true, User: &model.User{ID: "s-1", Role: model.RoleStaff}}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	res := do(t, router, http.MethodPost, "/api/staff/payments/p-1/verify", verifyRequest{Action: "maybe"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	svc.verifyErr = staff.ErrInFlight
	res = do(t, router, http.MethodPost, "/api/staff/payments/p-1/verify", verifyRequest{Action: gateway.VerifyApprove})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}

	svc.verifyErr = nil
	svc.verifyRef = &gateway.PaymentRef{PaymentID: "p-1", Status: model.PaymentStatusVerified}
	res = do(t, router, http.MethodPost, "/api/staff/payments/p-1/verify", verifyRequest{Action: gateway.VerifyApprove})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestCreateBeneficiary_ResponseIsMasked(t *testing.T) {
	svc := newStubService()
	svc.session = customer()
	h := newTestHandler(t, svc)

	res := do(t, h.SetupRouter(), http.MethodPost, "/api/beneficiaries", gateway.NewBeneficiary{
		FullName: "John Smith", BankName: "Barclays", AccountNumber: "12345678", SwiftCode: "BARCGB22",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	var b model.SavedBeneficiary
	if err := json.NewDecoder(res.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.AccountNumberMasked != "****5678" {
		t.Fatalf("masked = %q, want ****5678", b.AccountNumberMasked)
	}
}

func TestWizard_NotStarted(t *testing.T) {
	svc := newStubService()
	svc.session = customer()
	h := newTestHandler(t, svc)

	res := do(t, h.SetupRouter(), http.MethodPost, "/api/wizard/next", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestWizard_NextInvalidStep(t *testing.T) {
	svc := newStubService()
	svc.session = customer()
	svc.wizard = wizard.New(&wizardAPI{}, wizard.Options{})
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	res := do(t, router, http.MethodPut, "/api/wizard/payment", model.PaymentDetails{Amount: "-5", Currency: "USD"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res = do(t, router, http.MethodPost, "/api/wizard/next", nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
	var v wizard.View
	if err := json.NewDecoder(res.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := v.Errors["amount"]; !ok {
		t.Fatalf("errors = %v, want amount error", v.Errors)
	}
	if v.Step != wizard.StepPaymentDetails {
		t.Fatalf("step = %v, want payment details", v.Step)
	}
}

func TestWizard_NextServerError(t *testing.T) {
	svc := newStubService()
	svc.session = customer()
	svc.wizard = wizard.New(&wizardAPI{
		createErr: &gateway.Error{Kind: gateway.KindValidation, Status: 400, Message: "Amount exceeds daily limit"},
	}, wizard.Options{})
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	do(t, router, http.MethodPut, "/api/wizard/payment", model.PaymentDetails{Amount: "100.00", Currency: "USD", Reference: "INV-1", Purpose: "Invoice"})

	res := do(t, router, http.MethodPost, "/api/wizard/next", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	var v wizard.View
	if err := json.NewDecoder(res.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.LastError != "Amount exceeds daily limit" {
		t.Fatalf("lastError = %q", v.LastError)
	}
}

func TestWizard_CloseThenGet(t *testing.T) {
	svc := newStubService()
	svc.session = customer()
	svc.wizard = wizard.New(&wizardAPI{}, wizard.Options{})
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	res := do(t, router, http.MethodDelete, "/api/wizard", nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
	res = do(t, router, http.MethodGet, "/api/wizard", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	svc := newStubService()
	h := newTestHandler(t, svc)

	res := do(t, h.SetupRouter(), http.MethodPost, "/api/session/logout", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var out logoutResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Redirect != session.RouteLogin || svc.logouts != 1 {
		t.Fatalf("redirect = %q, logouts = %d", out.Redirect, svc.logouts)
	}
}

func TestExtend_WithoutSession(t *testing.T) {
	h := newTestHandler(t, newStubService())

	res := do(t, h.SetupRouter(), http.MethodPost, "/api/session/extend", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetNotifications(t *testing.T) {
	svc := newStubService()
	svc.notifications = []notify.Notification{{ID: 8, Severity: notify.SeveritySuccess, Message: "Payment submitted successfully and is pending verification."}}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	res := do(t, router, http.MethodGet, "/api/notifications?after=7", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.notifyAfter != 7 {
		t.Fatalf("after = %d, want 7", svc.notifyAfter)
	}

	res = do(t, router, http.MethodGet, "/api/notifications?after=x", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}
