package currency

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// ErrCurrencyMismatch is returned when combining amounts of different currencies
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrDivisionByZero is returned when dividing by a zero amount or scalar
	ErrDivisionByZero = errors.New("division by zero")
)

// DefaultPlaces is the number of decimal places String renders
const DefaultPlaces = 3

// Amount is a raw integer value of a currency.
// Amounts are values; every operation returns a new Amount.
type Amount struct {
	Currency Currency
	Value    *big.Int
}

func (a Amount) value() *big.Int {
	if a.Value == nil {
		return new(big.Int)
	}
	return a.Value
}

func (a Amount) with(v *big.Int) Amount {
	return Amount{Currency: a.Currency, Value: v}
}

// Int returns a copy of the raw value
func (a Amount) Int() *big.Int {
	return copyInt(a.Value)
}

// Add returns a + o
func (a Amount) Add(o Amount) (Amount, error) {
	if !a.Currency.Same(o.Currency) {
		return Amount{}, fmt.Errorf("add %s to %s: %w", o.Currency, a.Currency, ErrCurrencyMismatch)
	}
	return a.with(new(big.Int).Add(a.value(), o.value())), nil
}

// Sub returns a - o
func (a Amount) Sub(o Amount) (Amount, error) {
	if !a.Currency.Same(o.Currency) {
		return Amount{}, fmt.Errorf("subtract %s from %s: %w", o.Currency, a.Currency, ErrCurrencyMismatch)
	}
	return a.with(new(big.Int).Sub(a.value(), o.value())), nil
}

// MulScalar returns a*x truncated to an integer
func (a Amount) MulScalar(x float64) Amount {
	d := decimal.NewFromBigInt(a.value(), 0).Mul(decimal.NewFromFloat(x))
	return a.with(d.Truncate(0).BigInt())
}

// DivScalar returns a/x truncated to an integer
func (a Amount) DivScalar(x float64) (Amount, error) {
	if x == 0 {
		return Amount{}, ErrDivisionByZero
	}
	q, _ := decimal.NewFromBigInt(a.value(), 0).QuoRem(decimal.NewFromFloat(x), 0)
	return a.with(q.BigInt()), nil
}

// Mul multiplies by an amount read as a human value: a * o / 10^o.decimals.
// The result keeps a's currency, so price math like amount * rate works.
func (a Amount) Mul(o Amount) Amount {
	v := new(big.Int).Mul(a.value(), o.value())
	return a.with(v.Quo(v, o.Currency.Unit()))
}

// Div divides by an amount read as a human value: a * 10^o.decimals / o
func (a Amount) Div(o Amount) (Amount, error) {
	if o.value().Sign() == 0 {
		return Amount{}, ErrDivisionByZero
	}
	v := new(big.Int).Mul(a.value(), o.Currency.Unit())
	return a.with(v.Quo(v, o.value())), nil
}

// Cmp compares raw values: -1 if a < o, 0 if equal, +1 if a > o
func (a Amount) Cmp(o Amount) int {
	return a.value().Cmp(o.value())
}

// Equal reports whether a and o have the same value and currency
func (a Amount) Equal(o Amount) bool {
	return a.Cmp(o) == 0 && a.Currency.Same(o.Currency)
}

// IsZero reports whether the value is zero
func (a Amount) IsZero() bool {
	return a.value().Sign() == 0
}

// Decimal returns the human readable value
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.value(), -int32(a.Currency.Decimals))
}

// ToFixed returns the human readable value rounded to places
func (a Amount) ToFixed(places int32) decimal.Decimal {
	return a.Decimal().Round(places)
}

// String renders "<value rounded to 3 places> <symbol>"
func (a Amount) String() string {
	return a.ToFixed(DefaultPlaces).String() + " " + a.Currency.String()
}
