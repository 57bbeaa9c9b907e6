package validation

import "testing"

func TestEstimateFees(t *testing.T) {
	tests := []struct {
		name        string
		amountCents int64
		currency    string
		transfer    int64
		exchange    int64
	}{
		{
			name:        "minimum transfer fee in USD",
			amountCents: 100000,
			currency:    "USD",
			transfer:    1500,
			exchange:    200,
		},
		{
			name:        "percentage transfer fee",
			amountCents: 5000000,
			currency:    "USD",
			transfer:    5000,
			exchange:    10000,
		},
		{
			name:        "scaled by currency rate",
			amountCents: 100000,
			currency:    "EUR",
			transfer:    1275,
			exchange:    170,
		},
		{
			name:        "unknown currency uses rate 1",
			amountCents: 100000,
			currency:    "XYZ",
			transfer:    1500,
			exchange:    200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := EstimateFees(tt.amountCents, tt.currency)
			if q.TransferFee != tt.transfer {
				t.Fatalf("TransferFee = %d, want %d", q.TransferFee, tt.transfer)
			}
			if q.ExchangeFee != tt.exchange {
				t.Fatalf("ExchangeFee = %d, want %d", q.ExchangeFee, tt.exchange)
			}
			if q.TotalCents != tt.amountCents+tt.transfer+tt.exchange {
				t.Fatalf("TotalCents = %d", q.TotalCents)
			}
		})
	}
}
