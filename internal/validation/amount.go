package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)

const (
	// MinAmountCents: минимальная сумма платежа по умолчанию (0.01).
	MinAmountCents int64 = 1
	// MaxAmountCents: максимальная сумма платежа по умолчанию (999999.99).
	MaxAmountCents int64 = 99999999

	maxIntegerDigits = 15
)

// ErrInvalidAmount возвращается, если строка не является корректной денежной суммой.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmountCents переводит строку вида "100.5" в сумму в минимальных единицах (10050).
func ParseAmountCents(amount string) (int64, error) {
	if !amountPattern.MatchString(amount) {
		return 0, ErrInvalidAmount
	}

	whole, frac, _ := strings.Cut(amount, ".")
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	if len(whole) > maxIntegerDigits {
		return 0, ErrInvalidAmount
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	return units*100 + cents, nil
}

// FormatCents форматирует сумму в минимальных единицах как "1234.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// IsValidAmount проверяет сумму в границах по умолчанию [0.01, 999999.99].
func IsValidAmount(amount string) bool {
	return IsValidAmountInRange(amount, MinAmountCents, MaxAmountCents)
}

// IsValidAmountInRange проверяет формат суммы и её попадание в [minCents, maxCents].
func IsValidAmountInRange(amount string, minCents, maxCents int64) bool {
	cents, err := ParseAmountCents(amount)
	if err != nil {
		return false
	}
	return cents >= minCents && cents <= maxCents
}
