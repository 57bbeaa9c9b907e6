// Package validation содержит чистые функции проверки и форматирования входных данных платежей.
package validation

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	ibanPattern          = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{1,30}$`)
	swiftPattern         = regexp.MustCompile(`^[A-Z0-9]{8}([A-Z0-9]{3})?$`)
	accountNumberPattern = regexp.MustCompile(`^[0-9]{6,18}$`)
	maskedAccountPattern = regexp.MustCompile(`^\*{2,}[0-9]{4}$`)
)

// stripSpaces удаляет все пробельные символы и переводит строку в верхний регистр.
func stripSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// FormatSWIFT нормализует SWIFT/BIC: без пробелов, в верхнем регистре.
func FormatSWIFT(swift string) string {
	return stripSpaces(swift)
}

// FormatIBAN нормализует IBAN и группирует его по четыре символа через пробел.
func FormatIBAN(iban string) string {
	normalized := stripSpaces(iban)

	var b strings.Builder
	b.Grow(len(normalized) + len(normalized)/4)
	for i, r := range []rune(normalized) {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CompactIBAN возвращает IBAN без пробелов в верхнем регистре, в таком виде он уходит на сервер.
func CompactIBAN(iban string) string {
	return stripSpaces(iban)
}

// IsValidSWIFT проверяет форму SWIFT/BIC: ровно 8 или 11 латинских букв и цифр.
// Принадлежность кода реальному банку проверяет сервер.
func IsValidSWIFT(swift string) bool {
	return swiftPattern.MatchString(FormatSWIFT(swift))
}

// IsValidIBAN проверяет структуру IBAN и контрольную сумму по модулю 97.
func IsValidIBAN(iban string) bool {
	normalized := stripSpaces(iban)
	if !ibanPattern.MatchString(normalized) {
		return false
	}

	rearranged := normalized[4:] + normalized[:4]

	// Остаток считается по одной цифре, числовая строка может быть длиннее любого целого типа.
	remainder := 0
	for i := 0; i < len(rearranged); i++ {
		ch := rearranged[i]
		switch {
		case ch >= '0' && ch <= '9':
			remainder = (remainder*10 + int(ch-'0')) % 97
		case ch >= 'A' && ch <= 'Z':
			v := int(ch-'A') + 10
			remainder = (remainder*10 + v/10) % 97
			remainder = (remainder*10 + v%10) % 97
		default:
			return false
		}
	}

	return remainder == 1
}

// IsValidAccountNumber проверяет свежевведённый номер счёта: от 6 до 18 цифр.
// Маскированное значение здесь никогда не проходит.
func IsValidAccountNumber(number string) bool {
	return accountNumberPattern.MatchString(number)
}

// IsMaskedAccountNumber сообщает, выглядит ли значение как маскированный номер сохранённого получателя.
func IsMaskedAccountNumber(number string) bool {
	return maskedAccountPattern.MatchString(number)
}

// MaskAccountNumber заменяет на '*' каждую цифру, за которой следуют ещё минимум четыре цифры.
func MaskAccountNumber(number string) string {
	b := []byte(number)
	for i := range b {
		if !isDigit(b[i]) {
			continue
		}
		if i+4 >= len(b) {
			break
		}
		if isDigit(b[i+1]) && isDigit(b[i+2]) && isDigit(b[i+3]) && isDigit(b[i+4]) {
			b[i] = '*'
		}
	}
	return string(b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
