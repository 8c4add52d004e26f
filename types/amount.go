// Package types provides value types shared across Tally.
package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a string or number cannot be read as an Amount.
var ErrInvalidAmount = errors.New("amount: invalid")

// Amount is a non-negative integer quantity of the ledger's single unit of
// value, counted in the smallest indivisible subunit (wei for ETH).
// Amounts are immutable values with no upper bound.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for decoding.
type Amount struct {
	d decimal.Decimal
}

// Unit names a display denomination of the base subunit.
type Unit struct {
	Symbol   string `json:"symbol" yaml:"symbol" mapstructure:"symbol"`
	Decimals int32  `json:"decimals" yaml:"decimals" mapstructure:"decimals"`
}

// Common denominations.
var (
	Wei   = Unit{Symbol: "wei", Decimals: 0}
	Gwei  = Unit{Symbol: "gwei", Decimals: 9}
	Ether = Unit{Symbol: "ETH", Decimals: 18}
)

// ZeroAmount is the zero Amount.
var ZeroAmount Amount

// NewAmount creates an Amount from a count of subunits.
func NewAmount(v uint64) Amount {
	return Amount{d: decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)}
}

// AmountFromBig creates an Amount from a big integer. Negative values are rejected.
func AmountFromBig(v *big.Int) (Amount, error) {
	if v == nil {
		return ZeroAmount, nil
	}
	if v.Sign() < 0 {
		return ZeroAmount, fmt.Errorf("%w: negative value %s", ErrInvalidAmount, v)
	}
	return Amount{d: decimal.NewFromBigInt(new(big.Int).Set(v), 0)}, nil
}

// ParseAmount parses a base-10 integer count of subunits ("1000000000000000000").
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroAmount, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return ZeroAmount, fmt.Errorf("%w: %q is not an integer", ErrInvalidAmount, s)
	}
	return AmountFromBig(v)
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits parses a decimal quantity expressed in a denomination with the
// given number of decimals, e.g. ParseUnits("1.5", 18) is 1.5 ETH in wei.
// Quantities finer than one subunit are rejected rather than rounded.
func ParseUnits(s string, decimals int32) (Amount, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroAmount, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if d.IsNegative() {
		return ZeroAmount, fmt.Errorf("%w: negative value %q", ErrInvalidAmount, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return ZeroAmount, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, decimals)
	}
	return Amount{d: decimal.NewFromBigInt(scaled.BigInt(), 0)}, nil
}

// ParseIn parses a quantity denominated in u.
func ParseIn(s string, u Unit) (Amount, error) {
	return ParseUnits(s, u.Decimals)
}

// ──────────────────────────────────────────────────
// Comparison
// ──────────────────────────────────────────────────

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports whether a and b are the same quantity.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// ──────────────────────────────────────────────────
// Arithmetic
// ──────────────────────────────────────────────────

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sub returns a - b. It returns ErrInvalidAmount when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.LessThan(b) {
		return ZeroAmount, fmt.Errorf("%w: %s - %s underflows", ErrInvalidAmount, a, b)
	}
	return Amount{d: a.d.Sub(b.d)}, nil
}

// Sum adds all amounts.
func Sum(values ...Amount) Amount {
	total := ZeroAmount
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// ──────────────────────────────────────────────────
// Formatting
// ──────────────────────────────────────────────────

// String returns the base-10 count of subunits.
func (a Amount) String() string { return a.d.String() }

// BigInt returns a copy of the amount as a big integer.
func (a Amount) BigInt() *big.Int { return a.d.BigInt() }

// Float64 returns an approximation suitable for metrics.
func (a Amount) Float64() float64 { return a.d.InexactFloat64() }

// FormatUnits renders the amount in a denomination with the given decimals,
// trimming trailing zeros: NewAmount(1_500_000_000_000_000_000).FormatUnits(18) is "1.5".
func (a Amount) FormatUnits(decimals int32) string {
	return a.d.Shift(-decimals).String()
}

// Format renders the amount in u followed by its symbol, e.g. "1.5 ETH".
func (a Amount) Format(u Unit) string {
	return a.FormatUnits(u.Decimals) + " " + u.Symbol
}

// ──────────────────────────────────────────────────
// Encoding
// ──────────────────────────────────────────────────

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the amount as a decimal string so that values beyond
// 2^53 survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return a.UnmarshalText([]byte(s))
	}
	return a.UnmarshalText(data)
}

// Value implements driver.Valuer. Amounts are stored as decimal text.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = ZeroAmount
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("%w: negative value %d", ErrInvalidAmount, v)
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T into Amount", src)
	}
}
