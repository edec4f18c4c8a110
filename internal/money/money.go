package money

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
	ErrUnsupportedCurrency = errors.New("unsupported_currency")
)

// Currency is an ISO 4217 alpha code.
type Currency string

const (
	CNY Currency = "CNY"
	USD Currency = "USD"
	SGD Currency = "SGD"
	MYR Currency = "MYR"
	HKD Currency = "HKD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

var supported = map[Currency]struct{}{
	CNY: {},
	USD: {},
	SGD: {},
	MYR: {},
	HKD: {},
	EUR: {},
	GBP: {},
}

// ParseCurrency normalizes and validates a currency code.
func ParseCurrency(code string) (Currency, error) {
	currency := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := supported[currency]; !ok {
		return "", ErrUnsupportedCurrency
	}
	return currency, nil
}

// Money is an amount in the currency's minor unit (fen, cents, sen).
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

func New(amount int64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Add returns the sum of two amounts in the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns the difference of two amounts in the same currency.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	units := m.Amount / 100
	cents := m.Amount % 100
	sign := ""
	if m.Amount < 0 {
		sign = "-"
		units = -units
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, units, cents, m.Currency)
}
