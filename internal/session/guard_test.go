package session

import (
	"testing"

	"github.com/mmeshcher/nexuspay-client/internal/model"
)

func TestGuard(t *testing.T) {
	anon := model.Session{}
	as := func(role model.Role) model.Session {
		u := testUser(role)
		return model.Session{IsAuthenticated: true, User: &u}
	}
	// Пользователь без аутентификации не должен проходить по роли.
	stale := model.Session{IsAuthenticated: false, User: &model.User{Role: model.RoleAdmin}}

	tests := []struct {
		name    string
		session model.Session
		access  Access
		want    Decision
	}{
		{"protected anon", anon, AccessProtected, Decision{Redirect: RouteLogin}},
		{"protected customer", as(model.RoleCustomer), AccessProtected, Decision{Allowed: true}},
		{"public anon", anon, AccessPublicOnly, Decision{Allowed: true}},
		{"public customer", as(model.RoleCustomer), AccessPublicOnly, Decision{Redirect: RouteDashboard}},
		{"public staff", as(model.RoleStaff), AccessPublicOnly, Decision{Redirect: RouteStaffPortal}},
		{"public admin", as(model.RoleAdmin), AccessPublicOnly, Decision{Redirect: RouteAdminConsole}},
		{"staff anon", anon, AccessStaffOnly, Decision{Redirect: RouteStaffLogin}},
		{"staff staff", as(model.RoleStaff), AccessStaffOnly, Decision{Allowed: true}},
		{"staff admin", as(model.RoleAdmin), AccessStaffOnly, Decision{Redirect: RouteAdminConsole}},
		{"staff customer", as(model.RoleCustomer), AccessStaffOnly, Decision{Redirect: RouteDashboard}},
		{"admin anon", anon, AccessAdminOnly, Decision{Redirect: RouteAdminLogin}},
		{"admin admin", as(model.RoleAdmin), AccessAdminOnly, Decision{Allowed: true}},
		{"admin staff", as(model.RoleStaff), AccessAdminOnly, Decision{Redirect: RouteDashboard}},
		{"admin stale user", stale, AccessAdminOnly, Decision{Redirect: RouteAdminLogin}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Guard(tt.session, tt.access); got != tt.want {
				t.Fatalf("Guard() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRedirectAfterLogout(t *testing.T) {
	if got := RedirectAfterLogout(ReasonTimeout); got != RouteSessionTimeout {
		t.Fatalf("timeout redirect = %q", got)
	}
	for _, r := range []LogoutReason{ReasonUser, ReasonUnauthorized} {
		if got := RedirectAfterLogout(r); got != RouteLogin {
			t.Fatalf("%s redirect = %q", r, got)
		}
	}
}
