package validation

import "math"

const (
	minTransferFeeCents = 1500
	transferFeeRate     = 0.001
	exchangeFeeRate     = 0.002
)

// Ориентировочные курсы к USD для расчёта комиссий на шаге подтверждения.
var conversionRates = map[string]float64{
	"USD": 1,
	"EUR": 0.85,
	"GBP": 0.73,
	"JPY": 110,
	"CAD": 1.25,
	"AUD": 1.35,
	"CHF": 0.92,
	"CNY": 6.45,
	"ZAR": 15.5,
	"SEK": 8.5,
}

// Quote содержит ориентировочный расчёт комиссий платежа в минимальных единицах валюты.
type Quote struct {
	Currency       string `json:"currency"`
	Symbol         string `json:"symbol"`
	AmountCents    int64  `json:"amountCents"`
	TransferFee    int64  `json:"transferFeeCents"`
	ExchangeFee    int64  `json:"exchangeFeeCents"`
	TotalFeesCents int64  `json:"totalFeesCents"`
	TotalCents     int64  `json:"totalCents"`
}

// EstimateFees рассчитывает комиссию за перевод (не меньше 15 или 0.1%) и за конвертацию (0.2%).
func EstimateFees(amountCents int64, currency string) Quote {
	rate, ok := conversionRates[currency]
	if !ok {
		rate = 1
	}

	amount := float64(amountCents)
	transfer := math.Max(minTransferFeeCents, amount*transferFeeRate) * rate
	exchange := amount * exchangeFeeRate * rate

	q := Quote{
		Currency:    currency,
		Symbol:      CurrencySymbol(currency),
		AmountCents: amountCents,
		TransferFee: int64(math.Round(transfer)),
		ExchangeFee: int64(math.Round(exchange)),
	}
	q.TotalFeesCents = q.TransferFee + q.ExchangeFee
	q.TotalCents = q.AmountCents + q.TotalFeesCents
	return q
}
