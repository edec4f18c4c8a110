package money

import (
	"errors"
	"testing"
)

func TestAddSameCurrency(t *testing.T) {
	sum, err := New(1000, CNY).Add(New(500, CNY))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum.Amount != 1500 || sum.Currency != CNY {
		t.Fatalf("expected 1500 CNY, got %v", sum)
	}
}

func TestSubSameCurrency(t *testing.T) {
	diff, err := New(1000, USD).Sub(New(300, USD))
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if diff.Amount != 700 {
		t.Fatalf("expected 700, got %d", diff.Amount)
	}
}

func TestMismatchedCurrencyRejected(t *testing.T) {
	if _, err := New(1000, CNY).Add(New(200, USD)); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
	if _, err := New(1000, CNY).Sub(New(200, MYR)); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestParseCurrency(t *testing.T) {
	currency, err := ParseCurrency(" sgd ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if currency != SGD {
		t.Fatalf("expected SGD, got %s", currency)
	}

	if _, err := ParseCurrency("BTC"); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected unsupported currency, got %v", err)
	}
}

func TestString(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{1050, "10.50 CNY"},
		{5, "0.05 CNY"},
		{-150, "-1.50 CNY"},
		{-50, "-0.50 CNY"},
		{0, "0.00 CNY"},
	}
	for _, tc := range cases {
		if got := New(tc.amount, CNY).String(); got != tc.want {
			t.Fatalf("amount %d: expected %q, got %q", tc.amount, tc.want, got)
		}
	}
}
