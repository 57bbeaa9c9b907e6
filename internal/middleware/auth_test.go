package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/session"
)

type staticSession struct {
	snap model.Session
}

func (s staticSession) Guard(access session.Access) session.Decision {
	return session.Guard(s.snap, access)
}

func authenticated(role model.Role) staticSession {
	return staticSession{snap: model.Session{
		IsAuthenticated: true,
		User:            &model.User{ID: "u-1", FullName: "Dev User", Role: role},
	}}
}

func TestRequireAccess(t *testing.T) {
	tests := []struct {
		name     string
		session  staticSession
		access   session.Access
		status   int
		redirect string
	}{
		{name: "protected without session", session: staticSession{}, access: session.AccessProtected, status: http.StatusUnauthorized, redirect: session.RouteLogin},
		{name: "protected with customer", session: authenticated(model.RoleCustomer), access: session.AccessProtected, status: http.StatusOK},
		{name: "staff route without session", session: staticSession{}, access: session.AccessStaffOnly, status: http.StatusUnauthorized, redirect: session.RouteStaffLogin},
		{name: "staff route with customer", session: authenticated(model.RoleCustomer), access: session.AccessStaffOnly, status: http.StatusForbidden, redirect: session.RouteDashboard},
		{name: "staff route with staff", session: authenticated(model.RoleStaff), access: session.AccessStaffOnly, status: http.StatusOK},
		{name: "admin route with staff", session: authenticated(model.RoleStaff), access: session.AccessAdminOnly, status: http.StatusForbidden, redirect: session.RouteDashboard},
		{name: "admin route without session", session: staticSession{}, access: session.AccessAdminOnly, status: http.StatusUnauthorized, redirect: session.RouteAdminLogin},
		{name: "login page without session", session: staticSession{}, access: session.AccessPublicOnly, status: http.StatusOK},
		{name: "login page while signed in", session: authenticated(model.RoleStaff), access: session.AccessPublicOnly, status: http.StatusConflict, redirect: session.RouteStaffPortal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
			})

			w := httptest.NewRecorder()
			RequireAccess(tt.session, tt.access)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status == http.StatusOK {
				if !nextCalled {
					t.Fatalf("next handler was not called")
				}
				return
			}
			if nextCalled {
				t.Fatalf("next handler should not be called")
			}

			var d session.Decision
			if err := json.NewDecoder(w.Body).Decode(&d); err != nil {
				t.Fatalf("decode decision: %v", err)
			}
			if d.Redirect != tt.redirect {
				t.Fatalf("redirect = %q, want %q", d.Redirect, tt.redirect)
			}
		})
	}
}

func TestRequireReady(t *testing.T) {
	ready := make(chan struct{})
	h := RequireReady(ready)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before restore = %d, want 503", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q, want 1", got)
	}

	close(ready)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status after restore = %d, want 204", w.Code)
	}
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/session/login", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("status field = %v", fields["status"])
	}
	if fields["path"] != "/api/session/login" {
		t.Fatalf("path field = %v", fields["path"])
	}
	for _, banned := range []string{"authorization", "password", "token"} {
		if _, ok := fields[banned]; ok {
			t.Fatalf("request log must not carry %q", banned)
		}
	}
}
