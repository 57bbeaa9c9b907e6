package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/nexuspay-client/internal/session"
)

const loginFailed = "Login failed. Please check your details and try again."

type logoutResponse struct {
	Redirect string `json:"redirect"`
}

type sendOTPRequest struct {
	StaffID string `json:"staffId"`
	Email   string `json:"email"`
}

// GetSession возвращает снимок сессии.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Session())
}

// Login выполняет вход клиента. Если нужен одноразовый код, сессия не меняется и в ответе mfaRequired.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req session.CustomerLogin
	if !decode(w, r, &req) {
		return
	}
	out, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, err, loginFailed)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// StaffLogin выполняет вход сотрудника.
func (h *Handler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	var req session.StaffLogin
	if !decode(w, r, &req) {
		return
	}
	out, err := h.service.LoginStaff(r.Context(), req)
	if err != nil {
		h.writeError(w, err, loginFailed)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// AdminLogin выполняет вход администратора.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req session.AdminLogin
	if !decode(w, r, &req) {
		return
	}
	out, err := h.service.LoginAdmin(r.Context(), req)
	if err != nil {
		h.writeError(w, err, loginFailed)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Register регистрирует клиента и сразу открывает сессию.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req session.Registration
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "Registration failed. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// SendOTP запрашивает одноразовый код для сотрудника.
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.SendOTP(r.Context(), req.StaffID, req.Email)
	if err != nil {
		h.writeError(w, err, "Could not send the code. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Logout завершает сессию. Выход всегда успешен.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logoutResponse{Redirect: h.service.Logout(r.Context())})
}

// Extend продлевает сессию из предупреждения о бездействии.
func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ExtendSession(r.Context()); err != nil {
		h.writeError(w, err, "Could not extend the session.")
		return
	}
	writeJSON(w, http.StatusOK, h.service.Expiry())
}

// Activity отмечает действие пользователя.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	h.service.Activity()
	w.WriteHeader(http.StatusNoContent)
}

// GetExpiry возвращает состояние монитора бездействия.
func (h *Handler) GetExpiry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Expiry())
}

// Guard возвращает решение о доступе к разделу {route}.
func (h *Handler) Guard(w http.ResponseWriter, r *http.Request) {
	access := session.Access(chi.URLParam(r, "route"))
	switch access {
	case session.AccessProtected, session.AccessPublicOnly, session.AccessStaffOnly, session.AccessAdminOnly:
	default:
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Guard(access))
}
