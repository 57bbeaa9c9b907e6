package validation

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	fullNamePattern   = regexp.MustCompile(`^[A-Za-z ,.'-]{2,}$`)
	referencePattern  = regexp.MustCompile(`^[A-Za-z0-9 .\-]{1,35}$`)
	addressPattern    = regexp.MustCompile(`^[A-Za-z0-9 ,.'"\-]{1,70}$`)
	cityPattern       = regexp.MustCompile(`^[A-Za-z ,.'"\-]{1,35}$`)
	postalCodePattern = regexp.MustCompile(`^[A-Za-z0-9 \-]{1,16}$`)
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	idNumberPattern   = regexp.MustCompile(`^[0-9]{13}$`)
	staffIDPattern    = regexp.MustCompile(`^[A-Z0-9-]{3,20}$`)
	otpPattern        = regexp.MustCompile(`^[0-9]{6}$`)
)

const (
	maxPurposeLength  = 140
	minBankNameLength = 2
	minPasswordLength = 12
	maxSanitizedRunes = 10000
)

// SupportedCurrencies содержит коды валют, в которых принимаются платежи.
var SupportedCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "CNY", "ZAR", "SEK"}

// Country описывает страну, доступную для SWIFT-переводов.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SwiftCountries содержит страны получателей, поддерживаемые для SWIFT-переводов.
var SwiftCountries = []Country{
	{Code: "US", Name: "United States"},
	{Code: "GB", Name: "United Kingdom"},
	{Code: "DE", Name: "Germany"},
	{Code: "FR", Name: "France"},
	{Code: "IT", Name: "Italy"},
	{Code: "ES", Name: "Spain"},
	{Code: "NL", Name: "Netherlands"},
	{Code: "BE", Name: "Belgium"},
	{Code: "CH", Name: "Switzerland"},
	{Code: "AT", Name: "Austria"},
	{Code: "SE", Name: "Sweden"},
	{Code: "DK", Name: "Denmark"},
	{Code: "NO", Name: "Norway"},
	{Code: "FI", Name: "Finland"},
	{Code: "IE", Name: "Ireland"},
	{Code: "PT", Name: "Portugal"},
	{Code: "LU", Name: "Luxembourg"},
	{Code: "JP", Name: "Japan"},
	{Code: "AU", Name: "Australia"},
	{Code: "CA", Name: "Canada"},
	{Code: "ZA", Name: "South Africa"},
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CAD": "C$",
	"AUD": "A$",
	"CHF": "CHF",
	"CNY": "¥",
	"ZAR": "R",
	"SEK": "kr",
}

// IsValidFullName проверяет имя владельца счёта: минимум два символа из латиницы, пробела и знаков ,.'-
func IsValidFullName(name string) bool {
	return fullNamePattern.MatchString(name)
}

// IsValidBankName проверяет, что название банка задано.
func IsValidBankName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) >= minBankNameLength
}

// IsValidReference проверяет назначение перевода по белому списку символов.
func IsValidReference(reference string) bool {
	return referencePattern.MatchString(reference)
}

// IsValidPurpose проверяет цель платежа: непустая строка не длиннее 140 символов.
func IsValidPurpose(purpose string) bool {
	if strings.TrimSpace(purpose) == "" {
		return false
	}
	return utf8.RuneCountInString(purpose) <= maxPurposeLength
}

// IsValidAddress проверяет адрес получателя.
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// IsValidCity проверяет город получателя.
func IsValidCity(city string) bool {
	return cityPattern.MatchString(city)
}

// IsValidPostalCode проверяет почтовый индекс получателя.
func IsValidPostalCode(code string) bool {
	return postalCodePattern.MatchString(code)
}

// IsValidCountry проверяет, что код страны входит в список SWIFT-стран.
func IsValidCountry(code string) bool {
	return slices.ContainsFunc(SwiftCountries, func(c Country) bool { return c.Code == code })
}

// IsValidCurrency проверяет, что валюта поддерживается.
func IsValidCurrency(currency string) bool {
	return slices.Contains(SupportedCurrencies, currency)
}

// CurrencySymbol возвращает символ валюты или сам код, если символ неизвестен.
func CurrencySymbol(currency string) string {
	if s, ok := currencySymbols[currency]; ok {
		return s
	}
	return currency
}

// IsValidEmail проверяет форму адреса электронной почты.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsValidIDNumber проверяет номер удостоверения личности из 13 цифр.
func IsValidIDNumber(id string) bool {
	return idNumberPattern.MatchString(id)
}

// IsValidStaffID проверяет табельный номер сотрудника.
func IsValidStaffID(id string) bool {
	return staffIDPattern.MatchString(id)
}

// IsValidOTP проверяет одноразовый код из шести цифр.
func IsValidOTP(otp string) bool {
	return otpPattern.MatchString(otp)
}

// IsStrongPassword проверяет сложность пароля.
func IsStrongPassword(password string) bool {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return false
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	return hasLower && hasUpper && hasDigit && hasSymbol
}

// SanitizeText удаляет управляющие символы и обрезает строку до 10000 символов.
func SanitizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	n := 0
	for _, r := range input {
		if unicode.IsControl(r) {
			continue
		}
		if n == maxSanitizedRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
