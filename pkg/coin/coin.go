// Package coin defines the ledger's unit of value.
package coin

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Coin is an immutable unit of value locked by a puzzle hash.
type Coin struct {
	ParentCoinInfo types.Hash `json:"parent_coin_info"`
	PuzzleHash     types.Hash `json:"puzzle_hash"`
	Amount         uint64     `json:"amount"`
}

// Size is the length of a serialized coin: parent(32) | puzzle_hash(32) | amount(8).
const Size = 2*types.HashSize + 8

// Bytes returns the canonical serialization.
// Format: parent(32) | puzzle_hash(32) | amount(8, big-endian)
func (c Coin) Bytes() []byte {
	buf := make([]byte, 0, Size)
	buf = append(buf, c.ParentCoinInfo[:]...)
	buf = append(buf, c.PuzzleHash[:]...)
	buf = binary.BigEndian.AppendUint64(buf, c.Amount)
	return buf
}

// ID returns the coin name: BLAKE3 of the canonical serialization.
func (c Coin) ID() types.Hash {
	return crypto.Hash(c.Bytes())
}

// String returns a short human-readable form.
func (c Coin) String() string {
	return fmt.Sprintf("%s(%d)", c.ID(), c.Amount)
}

// FromBytes parses a coin serialized by Bytes.
func FromBytes(b []byte) (Coin, error) {
	if len(b) != Size {
		return Coin{}, fmt.Errorf("coin must be %d bytes, got %d", Size, len(b))
	}
	var c Coin
	copy(c.ParentCoinInfo[:], b[:types.HashSize])
	copy(c.PuzzleHash[:], b[types.HashSize:2*types.HashSize])
	c.Amount = binary.BigEndian.Uint64(b[2*types.HashSize:])
	return c, nil
}

// Total sums coin amounts. Returns an error on overflow.
func Total(coins []Coin) (uint64, error) {
	var total uint64
	for _, c := range coins {
		if total+c.Amount < total {
			return 0, fmt.Errorf("coin amount overflow")
		}
		total += c.Amount
	}
	return total, nil
}
