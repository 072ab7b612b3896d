// Package currency implements native and token denominations and amounts of them.
package currency

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the precision of ether and most EVM native currencies
const DefaultDecimals = 18

// Currency describes a denomination
type Currency struct {
	Name     string
	Symbol   string
	Decimals uint8
	// ID overrides the identity key; tokens set it to chainID:address
	ID string
}

// New creates a Currency; an empty symbol defaults to the name
func New(name, symbol string, decimals uint8) Currency {
	if symbol == "" {
		symbol = name
	}
	return Currency{Name: name, Symbol: symbol, Decimals: decimals}
}

// Native creates an 18 decimals currency named and symbolled name
func Native(name string) Currency {
	return New(name, name, DefaultDecimals)
}

// Key identifies the currency; amounts of currencies with different keys do not mix
func (c Currency) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Name + c.Symbol
}

// Same reports whether c and o are the same denomination
func (c Currency) Same(o Currency) bool {
	return c.Key() == o.Key()
}

// String returns the symbol, or the name when there is none
func (c Currency) String() string {
	if c.Symbol != "" {
		return c.Symbol
	}
	return c.Name
}

// Unit returns 10^decimals
func (c Currency) Unit() *big.Int {
	return pow10(c.Decimals)
}

// ToAmount wraps a raw integer value, taken as is
func (c Currency) ToAmount(raw *big.Int) Amount {
	return Amount{Currency: c, Value: copyInt(raw)}
}

// ParseAmount converts a human readable decimal ("1.5") into an Amount.
// Digits beyond the currency precision are truncated.
func (c Currency) ParseAmount(human string) (Amount, error) {
	d, err := decimal.NewFromString(human)
	if err != nil {
		return Amount{}, fmt.Errorf("parse %s amount %q: %w", c, human, err)
	}
	return c.FromDecimal(d), nil
}

// FromDecimal converts a human readable decimal value into an Amount
func (c Currency) FromDecimal(d decimal.Decimal) Amount {
	return Amount{Currency: c, Value: d.Shift(int32(c.Decimals)).Truncate(0).BigInt()}
}

// ParseFloat converts a human readable float into an Amount
func (c Currency) ParseFloat(f float64) Amount {
	return c.FromDecimal(decimal.NewFromFloat(f))
}

// AmountFromString parses a raw integer value, hex with a 0x prefix or decimal otherwise
func (c Currency) AmountFromString(s string) (Amount, error) {
	v, ok := ParseInt(s)
	if !ok {
		return Amount{}, fmt.Errorf("invalid %s amount %q", c, s)
	}
	return Amount{Currency: c, Value: v}, nil
}

// ParseInt parses "0x"-prefixed hex or decimal integers
func ParseInt(s string) (*big.Int, bool) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
