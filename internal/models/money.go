package models

import "fmt"

// Currency is an ISO 4217 code from the supported settlement set.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyCHF Currency = "CHF"
)

// SupportedCurrencies returns the settlement currencies accepted by the system.
func SupportedCurrencies() []string {
	return []string{string(CurrencyEUR), string(CurrencyUSD), string(CurrencyGBP), string(CurrencyCHF)}
}

// Valid reports whether the currency is in the supported set.
func (c Currency) Valid() bool {
	switch c {
	case CurrencyEUR, CurrencyUSD, CurrencyGBP, CurrencyCHF:
		return true
	}
	return false
}

// Money is an amount in minor units (cents) of a single currency.
// The zero value of a currency is the identity for Add.
type Money struct {
	Amount   int64    `json:"amount" db:"amount"`
	Currency Currency `json:"currency" db:"currency"`
}

// NewMoney validates the currency and builds a Money value.
func NewMoney(amount int64, currency Currency) (Money, error) {
	if !currency.Valid() {
		return Money{}, ErrUnsupportedCurrency(string(currency))
	}
	if amount < 0 {
		return Money{}, ErrInvalidAmount("amount must not be negative, got %d", amount)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// ZeroMoney returns the additive identity for the given currency.
func ZeroMoney(currency Currency) Money {
	return Money{Amount: 0, Currency: currency}
}

// Add returns the sum of two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch(m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// MultiplyBy scales the amount by an integer factor, preserving the currency.
func (m Money) MultiplyBy(n int) Money {
	return Money{Amount: m.Amount * int64(n), Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// String formats the amount with two decimal places, e.g. "EUR 100.00".
func (m Money) String() string {
	return fmt.Sprintf("%s %d.%02d", m.Currency, m.Amount/100, m.Amount%100)
}
