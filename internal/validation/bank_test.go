package validation

import "testing"

func TestIsValidIBAN(t *testing.T) {
	tests := []struct {
		name  string
		iban  string
		valid bool
	}{
		{
			name:  "valid GB",
			iban:  "GB82WEST12345698765432",
			valid: true,
		},
		{
			name:  "valid with spaces and lower case",
			iban:  "gb82 west 1234 5698 7654 32",
			valid: true,
		},
		{
			name:  "valid DE",
			iban:  "DE89370400440532013000",
			valid: true,
		},
		{
			name:  "last digit changed",
			iban:  "GB82WEST12345698765433",
			valid: false,
		},
		{
			name:  "check digits changed",
			iban:  "GB83WEST12345698765432",
			valid: false,
		},
		{
			name:  "country not letters",
			iban:  "1282WEST12345698765432",
			valid: false,
		},
		{
			name:  "too long",
			iban:  "GB82WEST1234569876543212345678901234",
			valid: false,
		},
		{
			name:  "punctuation",
			iban:  "GB82-WEST-1234-5698-7654-32",
			valid: false,
		},
		{
			name:  "empty string",
			iban:  "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidIBAN(tt.iban)
			if got != tt.valid {
				t.Fatalf("IsValidIBAN(%q) = %v, want %v", tt.iban, got, tt.valid)
			}
		})
	}
}

func TestIsValidIBAN_SingleCharacterSensitivity(t *testing.T) {
	const iban = "GB82WEST12345698765432"

	caught := 0
	total := 0
	for i := 4; i < len(iban); i++ {
		for _, repl := range "0123456789" {
			if byte(repl) == iban[i] {
				continue
			}
			if iban[i] < '0' || iban[i] > '9' {
				continue
			}
			total++
			mutated := iban[:i] + string(repl) + iban[i+1:]
			if !IsValidIBAN(mutated) {
				caught++
			}
		}
	}

	if total == 0 || caught != total {
		t.Fatalf("single digit substitutions caught %d of %d", caught, total)
	}
}

func TestIsValidSWIFT(t *testing.T) {
	tests := []struct {
		name  string
		swift string
		valid bool
	}{
		{name: "8 chars", swift: "DEUTDEFF", valid: true},
		{name: "11 chars", swift: "DEUTDEFF500", valid: true},
		{name: "lower case with spaces", swift: "deut de ff", valid: true},
		{name: "9 chars", swift: "DEUTDEFF5", valid: false},
		{name: "7 chars", swift: "DEUTDEF", valid: false},
		{name: "symbols", swift: "DEUT-EFF", valid: false},
		{name: "empty", swift: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidSWIFT(tt.swift); got != tt.valid {
				t.Fatalf("IsValidSWIFT(%q) = %v, want %v", tt.swift, got, tt.valid)
			}
		})
	}
}

func TestFormattersAreIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"deutdeff",
		" deut de ff 500 ",
		"gb82west12345698765432",
		"GB82 WEST 1234 5698 7654 32",
		"gb82\twest 1234\n5698",
		"ab",
		"ÄÖÜ iban",
	}

	for _, in := range inputs {
		once := FormatSWIFT(in)
		if twice := FormatSWIFT(once); twice != once {
			t.Fatalf("FormatSWIFT not idempotent for %q: %q then %q", in, once, twice)
		}

		once = FormatIBAN(in)
		if twice := FormatIBAN(once); twice != once {
			t.Fatalf("FormatIBAN not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestFormatIBAN_Groups(t *testing.T) {
	got := FormatIBAN("gb82west12345698765432")
	want := "GB82 WEST 1234 5698 7654 32"
	if got != want {
		t.Fatalf("FormatIBAN = %q, want %q", got, want)
	}
}

func TestCompactIBAN(t *testing.T) {
	if got := CompactIBAN(" gb82 west 1234 5698 7654 32 "); got != "GB82WEST12345698765432" {
		t.Fatalf("CompactIBAN = %q", got)
	}
}

func TestMaskAccountNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "1234567890", want: "******7890"},
		{in: "1234", want: "1234"},
		{in: "12345", want: "*2345"},
		{in: "", want: ""},
		{in: "12-34567890", want: "12-****7890"},
	}

	for _, tt := range tests {
		if got := MaskAccountNumber(tt.in); got != tt.want {
			t.Fatalf("MaskAccountNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAccountNumberForms(t *testing.T) {
	if !IsValidAccountNumber("1234567890") {
		t.Fatalf("fresh account number must be valid")
	}
	if IsValidAccountNumber("******7890") {
		t.Fatalf("masked account number must not pass as fresh")
	}
	if IsValidAccountNumber("12345") {
		t.Fatalf("5 digits must be rejected")
	}
	if !IsMaskedAccountNumber("******7890") {
		t.Fatalf("masked form must be recognised")
	}
	if IsMaskedAccountNumber("1234567890") {
		t.Fatalf("plain digits are not masked")
	}
}
