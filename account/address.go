// Package account identifies the parties that create, receive and pay invoices.
package account

import (
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the size of an address in bytes.
const AddressLength = 20

// ErrInvalidAddress is returned when a string is not a 0x-prefixed 20-byte hex address.
var ErrInvalidAddress = errors.New("account: invalid address")

// Address is an opaque party identifier rendered as 0x-prefixed hex.
// The zero Address is never a valid invoice recipient.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for decoding.
type Address [AddressLength]byte

// Zero is the empty address.
var Zero Address

// Parse reads a 0x-prefixed, 40 hex digit address. Case is ignored.
func Parse(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return Zero, fmt.Errorf("%w: %q is missing the 0x prefix", ErrInvalidAddress, s)
	}
	raw := s[2:]
	if len(raw) != AddressLength*2 {
		return Zero, fmt.Errorf("%w: %q must have %d hex digits", ErrInvalidAddress, s, AddressLength*2)
	}

	var a Address
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return a, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded addresses.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBytes copies b into an Address. b must be exactly AddressLength bytes.
func FromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Zero, fmt.Errorf("%w: got %d bytes", ErrInvalidAddress, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// String returns the lowercase 0x-prefixed hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short returns an abbreviated form such as 0x1234…abcd for display.
func (a Address) Short() string {
	s := a.String()
	return s[:6] + "…" + s[len(s)-4:]
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Zero
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLength)
	copy(b, a[:])
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer.
func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Address) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Zero
		return nil
	case string:
		if v == "" {
			*a = Zero
			return nil
		}
		return a.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == AddressLength {
			copy(a[:], v)
			return nil
		}
		return a.UnmarshalText(v)
	default:
		return fmt.Errorf("account: cannot scan %T into Address", src)
	}
}
