// Package middleware содержит HTTP middleware локального API клиента NexusPay.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/mmeshcher/nexuspay-client/internal/session"
)

// Guarder принимает решение о доступе для текущей сессии.
type Guarder interface {
	Guard(access session.Access) session.Decision
}

// RequireAccess пропускает запрос, только если текущая сессия удовлетворяет требованию access.
// Иначе отвечает 401 без сессии, 403 при неподходящей роли или 409 для публичных маршрутов
// при открытой сессии и сообщает маршрут перенаправления.
func RequireAccess(g Guarder, access session.Access) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Guard(access)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			status := http.StatusForbidden
			switch {
			case access == session.AccessPublicOnly:
				status = http.StatusConflict
			case d.Redirect == session.RouteLogin, d.Redirect == session.RouteStaffLogin, d.Redirect == session.RouteAdminLogin:
				status = http.StatusUnauthorized
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(d)
		})
	}
}

// RequireReady отвечает 503 с Retry-After, пока ready не закрыт.
func RequireReady(ready <-chan struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-ready:
				next.ServeHTTP(w, r)
			default:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session is being restored", http.StatusServiceUnavailable)
			}
		})
	}
}
