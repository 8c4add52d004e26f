package event

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest chaining one record to the next.
type Hash [32]byte

// recordDomainKey separates record hashes from any other BLAKE3 use.
// Changing it invalidates every existing chain.
var recordDomainKey = [32]byte{
	't', 'a', 'l', 'l', 'y', '.', 'e', 'v', 'e', 'n', 't', '.',
	'r', 'e', 'c', 'o', 'r', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func keyedHash(data []byte) Hash {
	hasher, err := blake3.NewKeyed(recordDomainKey[:])
	if err != nil {
		panic("event: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data) //nolint:errcheck // hash writes never fail
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// IsZero reports whether h is the all-zero hash that precedes the first record.
func (h Hash) IsZero() bool { return h == Hash{} }

// String returns the lowercase hex form.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(data []byte) error {
	if len(data) != hex.EncodedLen(len(h)) {
		return fmt.Errorf("event: hash must be %d hex digits, got %d", hex.EncodedLen(len(h)), len(data))
	}
	_, err := hex.Decode(h[:], data)
	return err
}
