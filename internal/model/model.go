// Package model содержит доменные сущности клиента NexusPay.
package model

import "time"

// Role описывает роль пользователя, от которой зависят доступные разделы.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// User: неизменяемый снимок пользователя, полученный от сервера.
type User struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session: снимок состояния аутентификации.
type Session struct {
	IsAuthenticated    bool       `json:"isAuthenticated"`
	User               *User      `json:"user,omitempty"`
	IsFirstLogin       *bool      `json:"isFirstLogin,omitempty"`
	FailedAttempts     int        `json:"failedAttempts"`
	NextAllowedLoginAt *time.Time `json:"nextAllowedLoginAt,omitempty"`
}

// PaymentStatus описывает статус платежа на сервере.
type PaymentStatus string

const (
	PaymentStatusDraft               PaymentStatus = "draft"
	PaymentStatusPendingVerification PaymentStatus = "pending_verification"
	PaymentStatusVerified            PaymentStatus = "verified"
	PaymentStatusRejected            PaymentStatus = "rejected"
	PaymentStatusSubmittedToSwift    PaymentStatus = "submitted_to_swift"
)

// PaymentDetails: данные первого шага мастера платежа.
type PaymentDetails struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	Purpose   string `json:"purpose"`
}

// BeneficiaryDetails: данные получателя второго шага мастера платежа.
type BeneficiaryDetails struct {
	FullName      string `json:"fullName"`
	BankName      string `json:"bankName"`
	SwiftCode     string `json:"swiftCode"`
	AccountNumber string `json:"accountNumber"`
	IBAN          string `json:"iban"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
}

// Payment: платёж в том виде, в каком его возвращает сервер.
type Payment struct {
	ID                  string        `json:"id"`
	AmountCents         int64         `json:"amountCents"`
	Currency            string        `json:"currency"`
	Provider            string        `json:"provider"`
	Status              PaymentStatus `json:"status"`
	Reference           string        `json:"reference,omitempty"`
	Purpose             string        `json:"purpose,omitempty"`
	BeneficiaryName     string        `json:"beneficiaryName,omitempty"`
	SwiftCode           string        `json:"swiftCode,omitempty"`
	AccountNumberMasked string        `json:"accountNumberMasked,omitempty"`
	CustomerName        string        `json:"customerName,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
}

// PaymentPage: страница списка платежей.
type PaymentPage struct {
	Items []Payment `json:"items"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Total int       `json:"total"`
}

// SavedBeneficiary: сохранённый получатель. Номер счёта сервер всегда отдаёт маскированным.
type SavedBeneficiary struct {
	ID                  string    `json:"id"`
	FullName            string    `json:"fullName"`
	BankName            string    `json:"bankName"`
	AccountNumberMasked string    `json:"accountNumberMasked"`
	SwiftCode           string    `json:"swiftCode"`
	CreatedAt           time.Time `json:"createdAt"`
}

// StaffMember: учётная запись сотрудника в консоли администратора.
type StaffMember struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email,omitempty"`
	StaffID   string    `json:"staffId"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Theme описывает тему интерфейса.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Preferences: пользовательские настройки интерфейса, переживающие выход из системы.
type Preferences struct {
	Theme    Theme  `json:"theme"`
	Currency string `json:"currency"`
}

// DefaultPreferences возвращает настройки по умолчанию.
func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeLight, Currency: "USD"}
}
