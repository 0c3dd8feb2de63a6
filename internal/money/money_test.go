package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMinor(t *testing.T) {
	cases := []struct {
		input   string
		want    int64
		wantErr error
	}{
		{"100", 10000, nil},
		{"100.5", 10050, nil},
		{"100.55", 10055, nil},
		{"-3.07", -307, nil},
		{"+0.01", 1, nil},
		{".50", 50, nil},
		{"", 0, ErrInvalidAmount},
		{"abc", 0, ErrInvalidAmount},
		{"1.234", 0, ErrTooManyDecimals},
		{"1.-2", 0, ErrInvalidAmount},
	}
	for _, tc := range cases {
		got, err := ParseMinor(tc.input)
		if err != tc.wantErr {
			t.Fatalf("ParseMinor(%q) error = %v, want %v", tc.input, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseMinor(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	if got := FormatMinor(10050); got != "100.50" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatMinor(-307); got != "-3.07" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatMinor(5); got != "0.05" {
		t.Fatalf("unexpected format: %s", got)
	}
}

func TestAddRejectsCurrencyMismatch(t *testing.T) {
	_, err := New(100, "USD").Add(New(100, "EUR"))
	if err != ErrCurrencyMismatch {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestSubChecked(t *testing.T) {
	result, err := New(500, "USD").SubChecked(New(200, "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AmountMinor != 300 {
		t.Fatalf("unexpected amount: %d", result.AmountMinor)
	}
	if _, err := New(100, "USD").SubChecked(New(200, "USD")); err != ErrNegativeResult {
		t.Fatalf("expected ErrNegativeResult, got %v", err)
	}
}

func TestPercentRoundsToMinorUnits(t *testing.T) {
	pct := decimal.RequireFromString("1.5")
	fee := New(10000, "USD").Percent(pct)
	if fee.AmountMinor != 150 {
		t.Fatalf("expected 150, got %d", fee.AmountMinor)
	}
	// 1.5% of 0.33 is 0.495 minor units, banker's rounding to 0.
	fee = New(33, "USD").Percent(pct)
	if fee.AmountMinor != 0 {
		t.Fatalf("expected 0, got %d", fee.AmountMinor)
	}
}

func TestEqualAndOrdering(t *testing.T) {
	if !New(100, "USD").Equal(New(100, "USD")) {
		t.Fatalf("expected equality")
	}
	if New(100, "USD").Equal(New(100, "EUR")) {
		t.Fatalf("different currencies must not compare equal")
	}
	less, err := New(99, "USD").LessThan(New(100, "USD"))
	if err != nil || !less {
		t.Fatalf("expected 99 < 100, err=%v", err)
	}
	if _, err := New(1, "USD").LessThan(New(1, "EUR")); err != ErrCurrencyMismatch {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
}
