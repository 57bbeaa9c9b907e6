package mockapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

type staffBody struct {
	FullName string `json:"fullName"`
	StaffID  string `json:"staffId"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *account) staffMember() model.StaffMember {
	return model.StaffMember{
		ID:        a.user.ID,
		FullName:  a.user.FullName,
		Email:     a.user.Email,
		StaffID:   a.staffID,
		IsActive:  a.active,
		CreatedAt: a.user.CreatedAt,
	}
}

func (s *Server) listStaff(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("search")))

	s.mu.Lock()
	items := make([]model.StaffMember, 0)
	for _, a := range s.accounts {
		if a.user.Role != model.RoleStaff {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.user.FullName), search) &&
			!strings.Contains(strings.ToLower(a.staffID), search) &&
			!strings.Contains(strings.ToLower(a.user.Email), search) {
			continue
		}
		items = append(items, a.staffMember())
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].StaffID < items[j].StaffID })
	writeData(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) createStaff(w http.ResponseWriter, r *http.Request) {
	var body staffBody
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case !validation.IsValidFullName(body.FullName):
		writeError(w, http.StatusBadRequest, "invalid full name")
		return
	case !validation.IsValidStaffID(body.StaffID):
		writeError(w, http.StatusBadRequest, "invalid staff id")
		return
	case body.Email != "" && !validation.IsValidEmail(body.Email):
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	case !validation.IsStrongPassword(body.Password):
		writeError(w, http.StatusBadRequest, "password is too weak")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot hash password")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findAccount(func(a *account) bool { return a.staffID == body.StaffID }) != nil {
		writeError(w, http.StatusConflict, "staff id already exists")
		return
	}

	acc := &account{
		user: model.User{
			ID:        newID(),
			FullName:  body.FullName,
			Email:     body.Email,
			Role:      model.RoleStaff,
			CreatedAt: s.now(),
		},
		staffID:      body.StaffID,
		passwordHash: hash,
		mfa:          true,
		active:       true,
	}
	s.accounts[acc.user.ID] = acc
	writeData(w, http.StatusCreated, acc.staffMember())
}

func (s *Server) updateStaff(w http.ResponseWriter, r *http.Request) {
	var body staffBody
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.FullName != "" && !validation.IsValidFullName(body.FullName) {
		writeError(w, http.StatusBadRequest, "invalid full name")
		return
	}
	if body.Email != "" && !validation.IsValidEmail(body.Email) {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if body.Password != "" && !validation.IsStrongPassword(body.Password) {
		writeError(w, http.StatusBadRequest, "password is too weak")
		return
	}

	var hash []byte
	if body.Password != "" {
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.MinCost); err != nil {
			writeError(w, http.StatusInternalServerError, "cannot hash password")
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[chi.URLParam(r, "id")]
	if !ok || acc.user.Role != model.RoleStaff {
		writeError(w, http.StatusNotFound, "staff member not found")
		return
	}
	if body.FullName != "" {
		acc.user.FullName = body.FullName
	}
	if body.Email != "" {
		acc.user.Email = body.Email
	}
	if hash != nil {
		acc.passwordHash = hash
	}
	writeData(w, http.StatusOK, acc.staffMember())
}

func (s *Server) deleteStaff(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := chi.URLParam(r, "id")
	acc, ok := s.accounts[id]
	if !ok || acc.user.Role != model.RoleStaff {
		writeError(w, http.StatusNotFound, "staff member not found")
		return
	}
	delete(s.accounts, id)
	writeOK(w)
}
