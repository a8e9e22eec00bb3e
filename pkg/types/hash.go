// Package types defines the primitive values shared by the wallet engine.
package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash is a 256-bit digest. Coin ids, puzzle hashes and block headers are
// all hashes. It encodes as lowercase hex in text and JSON, including as a
// JSON object key.
type Hash [HashSize]byte

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash.
func (h Hash) Bytes() []byte {
	return bytes.Clone(h[:])
}

// Compare orders hashes bytewise, like bytes.Compare.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

func (h Hash) Less(other Hash) bool {
	return h.Compare(other) < 0
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes 64 hex characters. Empty text is the zero hash.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	decoded, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// HexToHash parses exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*HashSize {
		return h, fmt.Errorf("hash must be %d hex characters, got %d", 2*HashSize, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	return h, nil
}
