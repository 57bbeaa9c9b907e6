package mockapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

type tokenClaims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

func (s *Server) issueToken(acc *account) (string, error) {
	now := s.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        newID(),
		},
		Role: acc.user.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(raw string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

type loginBody struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	AccountNumber   string `json:"accountNumber"`
	StaffID         string `json:"staffId"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	OTP             string `json:"otp"`
}

type loginResponse struct {
	User         *model.User `json:"user,omitempty"`
	AccessToken  string      `json:"accessToken,omitempty"`
	MFARequired  bool        `json:"mfaRequired,omitempty"`
	HasEmail     *bool       `json:"hasEmail,omitempty"`
	IsFirstLogin *bool       `json:"isFirstLogin,omitempty"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !decode(r, &body) || body.UsernameOrEmail == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if !validation.IsValidAccountNumber(body.AccountNumber) {
		writeError(w, http.StatusBadRequest, "invalid account number")
		return
	}

	s.mu.Lock()
	acc := s.findAccount(func(a *account) bool {
		return a.user.Role == model.RoleCustomer &&
			a.accountNumber == body.AccountNumber &&
			(strings.EqualFold(a.user.Email, body.UsernameOrEmail) || a.username == body.UsernameOrEmail)
	})
	s.mu.Unlock()

	s.finishLogin(w, acc, body)
}

func (s *Server) staffLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !decode(r, &body) || body.StaffID == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "staff id and password are required")
		return
	}

	s.mu.Lock()
	acc := s.findAccount(func(a *account) bool {
		return a.user.Role == model.RoleStaff && a.staffID == body.StaffID
	})
	s.mu.Unlock()

	s.finishLogin(w, acc, body)
}

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !decode(r, &body) || body.UsernameOrEmail == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	s.mu.Lock()
	acc := s.findAccount(func(a *account) bool {
		return a.user.Role == model.RoleAdmin &&
			(strings.EqualFold(a.user.Email, body.UsernameOrEmail) || a.username == body.UsernameOrEmail)
	})
	s.mu.Unlock()

	s.finishLogin(w, acc, body)
}

func (s *Server) finishLogin(w http.ResponseWriter, acc *account, body loginBody) {
	if acc == nil || !acc.active || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(body.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if acc.mfa {
		if body.OTP == "" {
			res := loginResponse{MFARequired: true}
			if acc.user.Role == model.RoleStaff {
				hasEmail := acc.user.Email != ""
				res.HasEmail = &hasEmail
			}
			writeData(w, http.StatusOK, res)
			return
		}
		if body.OTP != ValidOTP {
			writeError(w, http.StatusUnauthorized, "invalid verification code")
			return
		}
	}

	s.writeSession(w, http.StatusOK, acc, false)
}

func (s *Server) writeSession(w http.ResponseWriter, status int, acc *account, firstLogin bool) {
	token, err := s.issueToken(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot issue token")
		return
	}

	user := acc.user
	res := loginResponse{User: &user, AccessToken: token}
	if s.assertFL || firstLogin {
		res.IsFirstLogin = &firstLogin
	}
	writeData(w, status, res)
}

func (s *Server) sendOTP(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !decode(r, &body) || body.StaffID == "" {
		writeError(w, http.StatusBadRequest, "staff id is required")
		return
	}

	s.mu.Lock()
	acc := s.findAccount(func(a *account) bool {
		return a.user.Role == model.RoleStaff && a.staffID == body.StaffID
	})
	if acc != nil {
		s.otpSent[acc.user.ID] = true
	}
	s.mu.Unlock()

	if acc == nil {
		// Не раскрываем, существует ли сотрудник.
		writeData(w, http.StatusOK, map[string]bool{"hasEmail": false, "sent": false})
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"hasEmail": acc.user.Email != "", "sent": true})
}

type registerBody struct {
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	AccountNumber string `json:"accountNumber"`
	IDNumber      string `json:"idNumber"`
	Password      string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !decode(r, &body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case !validation.IsValidFullName(body.FullName):
		writeError(w, http.StatusBadRequest, "invalid full name")
		return
	case !validation.IsValidEmail(body.Email):
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	case !validation.IsValidAccountNumber(body.AccountNumber):
		writeError(w, http.StatusBadRequest, "invalid account number")
		return
	case !validation.IsValidIDNumber(body.IDNumber):
		writeError(w, http.StatusBadRequest, "invalid id number")
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
	exists := s.findAccount(func(a *account) bool {
		return strings.EqualFold(a.user.Email, body.Email) || (body.Username != "" && a.username == body.Username)
	})
	if exists != nil {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "user already exists")
		return
	}
	acc := &account{
		user: model.User{
			ID:        newID(),
			FullName:  body.FullName,
			Email:     body.Email,
			Role:      model.RoleCustomer,
			CreatedAt: s.now(),
		},
		username:      body.Username,
		accountNumber: body.AccountNumber,
		passwordHash:  hash,
		active:        true,
	}
	s.accounts[acc.user.ID] = acc
	s.mu.Unlock()

	s.writeSession(w, http.StatusCreated, acc, true)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.revoked[authFrom(r).token] = true
	s.mu.Unlock()
	writeOK(w)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	acc := s.accounts[authFrom(r).userID]
	user := acc.user
	s.mu.Unlock()
	writeData(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	info := authFrom(r)

	s.mu.Lock()
	acc := s.accounts[info.userID]
	s.revoked[info.token] = true
	s.mu.Unlock()

	token, err := s.issueToken(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot issue token")
		return
	}
	user := acc.user
	writeData(w, http.StatusOK, map[string]any{"accessToken": token, "user": user})
}

// findAccount вызывается под s.mu.
func (s *Server) findAccount(match func(*account) bool) *account {
	for _, a := range s.accounts {
		if match(a) {
			return a
		}
	}
	return nil
}

// TokenFor выдаёт действующий токен встроенному пользователю с указанным email.
func (s *Server) TokenFor(email string) (string, error) {
	s.mu.Lock()
	acc := s.findAccount(func(a *account) bool { return strings.EqualFold(a.user.Email, email) })
	s.mu.Unlock()
	if acc == nil {
		return "", errors.New("unknown account")
	}
	return s.issueToken(acc)
}
