// Package crypto provides the hashing and signature primitives the wallet
// builds on: BLAKE3-256 for ids and commitments, Schnorr over secp256k1 for
// authorization.
package crypto

import (
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashConcat hashes the concatenation of two hashes.
// Signing messages bind a coin id to a payload hash this way.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
