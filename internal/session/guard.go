package session

import "github.com/mmeshcher/nexuspay-client/internal/model"

// Access: требование маршрута к сессии.
type Access string

const (
	AccessProtected  Access = "protected"
	AccessPublicOnly Access = "public-only"
	AccessStaffOnly  Access = "staff-only"
	AccessAdminOnly  Access = "admin-only"
)

// Маршруты, на которые уводят проверки доступа и выход.
const (
	RouteLogin          = "/login"
	RouteStaffLogin     = "/staff-login"
	RouteAdminLogin     = "/admin-login"
	RouteSessionTimeout = "/session-timeout"
	RouteDashboard      = "/dashboard"
	RouteStaffPortal    = "/staff"
	RouteAdminConsole   = "/admin"
)

// Decision: результат проверки доступа. Redirect пуст, если доступ разрешён.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func redirect(to string) Decision { return Decision{Redirect: to} }

// HomeFor возвращает стартовую страницу роли.
func HomeFor(role model.Role) string {
	switch role {
	case model.RoleAdmin:
		return RouteAdminConsole
	case model.RoleStaff:
		return RouteStaffPortal
	}
	return RouteDashboard
}

// Guard проверяет доступ к маршруту. Аутентификация проверяется раньше роли.
func Guard(s model.Session, access Access) Decision {
	var role model.Role
	if s.IsAuthenticated && s.User != nil {
		role = s.User.Role
	}

	switch access {
	case AccessPublicOnly:
		if !s.IsAuthenticated {
			return allow()
		}
		return redirect(HomeFor(role))

	case AccessStaffOnly:
		if !s.IsAuthenticated {
			return redirect(RouteStaffLogin)
		}
		if role == model.RoleStaff {
			return allow()
		}
		return redirect(HomeFor(role))

	case AccessAdminOnly:
		if !s.IsAuthenticated {
			return redirect(RouteAdminLogin)
		}
		if role == model.RoleAdmin {
			return allow()
		}
		return redirect(RouteDashboard)

	default:
		if !s.IsAuthenticated {
			return redirect(RouteLogin)
		}
		return allow()
	}
}

// RedirectAfterLogout возвращает страницу после выхода: тайм-аут ведёт на отдельную страницу с объяснением.
func RedirectAfterLogout(reason LogoutReason) string {
	if reason == ReasonTimeout {
		return RouteSessionTimeout
	}
	return RouteLogin
}
