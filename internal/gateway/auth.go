package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mmeshcher/nexuspay-client/internal/model"
)

// LoginRequest: запрос входа клиента.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	AccountNumber   string `json:"accountNumber"`
	Password        string `json:"password"`
	OTP             string `json:"otp,omitempty"`
}

// StaffLoginRequest: запрос входа сотрудника.
type StaffLoginRequest struct {
	StaffID  string `json:"staffId"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

// AdminLoginRequest: запрос входа администратора.
type AdminLoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
	OTP             string `json:"otp,omitempty"`
}

// RegisterRequest: запрос регистрации клиента.
type RegisterRequest struct {
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	AccountNumber string `json:"accountNumber"`
	IDNumber      string `json:"idNumber"`
	Password      string `json:"password"`
}

// LoginResult: ответ на вход или регистрацию.
type LoginResult struct {
	User          *model.User `json:"user,omitempty"`
	AccessToken   string      `json:"accessToken,omitempty"`
	MFARequired   bool        `json:"mfaRequired,omitempty"`
	HasEmail      *bool       `json:"hasEmail,omitempty"`
	UnknownDevice bool        `json:"unknownDevice,omitempty"`
	// IsFirstLogin заполняется, если сервер явно сообщает о первом входе.
	IsFirstLogin *bool `json:"isFirstLogin,omitempty"`
}

func (r *LoginResult) validate() error {
	if r.MFARequired {
		return nil
	}
	if r.User == nil {
		return errors.New("login response has no user")
	}
	if r.AccessToken == "" {
		return errors.New("login response has no access token")
	}
	return validateUser(r.User)
}

// SendOTPResult: ответ на запрос отправки одноразового кода.
type SendOTPResult struct {
	HasEmail bool `json:"hasEmail"`
	Sent     bool `json:"sent"`
}

// RefreshResult: ответ на продление сессии.
type RefreshResult struct {
	AccessToken string      `json:"accessToken"`
	User        *model.User `json:"user,omitempty"`
}

func (r *RefreshResult) validate() error {
	if r.AccessToken == "" {
		return errors.New("refresh response has no access token")
	}
	if r.User != nil {
		return validateUser(r.User)
	}
	return nil
}

type meResponse struct {
	User *model.User `json:"user"`
}

func (r *meResponse) validate() error {
	if r.User == nil {
		return errors.New("me response has no user")
	}
	return validateUser(r.User)
}

func validateUser(u *model.User) error {
	if u.ID == "" {
		return errors.New("user id is empty")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("unknown user role %q", u.Role)
	}
	if u.CreatedAt.IsZero() {
		return errors.New("user createdAt is missing")
	}
	return nil
}

// Login выполняет вход клиента.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StaffLogin выполняет вход сотрудника.
func (c *Client) StaffLogin(ctx context.Context, req StaffLoginRequest) (*LoginResult, error) {
	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/staff-login", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AdminLogin выполняет вход администратора.
func (c *Client) AdminLogin(ctx context.Context, req AdminLoginRequest) (*LoginResult, error) {
	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/admin-login", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendOTP просит сервер отправить одноразовый код сотруднику.
func (c *Client) SendOTP(ctx context.Context, staffID, email string) (*SendOTPResult, error) {
	body := struct {
		StaffID string `json:"staffId"`
		Email   string `json:"email,omitempty"`
	}{StaffID: staffID, Email: email}

	var res SendOTPResult
	if err := c.do(ctx, http.MethodPost, "/auth/send-otp", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Register регистрирует клиента.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &res); err != nil {
		return nil, err
	}
	if res.MFARequired {
		return nil, &Error{Kind: KindInvalidResponse, Message: "registration cannot require mfa"}
	}
	return &res, nil
}

// Logout завершает сессию на сервере.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
}

// Me возвращает текущего пользователя по действующему токену.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var res meResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.User, nil
}

// Refresh продлевает сессию и возвращает новый токен.
func (c *Client) Refresh(ctx context.Context) (*RefreshResult, error) {
	var res RefreshResult
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
