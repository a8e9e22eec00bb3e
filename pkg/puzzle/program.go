// Package puzzle defines locking programs, their solutions and the
// conditions a program outputs when evaluated against a solution.
//
// The wallet only calls the Engine interface. Reference is the engine the
// in-memory ledger and the tests evaluate against.
package puzzle

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Kind identifies the locking program template.
type Kind uint8

const (
	KindStandard    Kind = 0x01 // Pay to public key
	KindRateLimited Kind = 0x02 // Rate-limited singleton
	KindAggregation Kind = 0x03 // Deposit into a rate-limited coin
)

// String returns a human-readable name for the program kind.
func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "Standard"
	case KindRateLimited:
		return "RateLimited"
	case KindAggregation:
		return "Aggregation"
	default:
		return "Unknown"
	}
}

// Program errors.
var (
	ErrMalformedProgram = errors.New("malformed program")
	ErrUnknownKind      = errors.New("unknown program kind")
)

// Program is a locking script. Its hash is the puzzle hash coins commit to.
type Program struct {
	Kind Kind           `json:"kind"`
	Data types.HexBytes `json:"data"`
}

// Bytes returns the canonical serialization.
// Format: kind(1) | data_len(4) | data
func (p Program) Bytes() []byte {
	buf := make([]byte, 0, 5+len(p.Data))
	buf = append(buf, byte(p.Kind))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Data)))
	return append(buf, p.Data...)
}

// Hash returns the puzzle hash of the program.
func (p Program) Hash() types.Hash {
	return crypto.Hash(p.Bytes())
}

// RateLimitParams are the immutable parameters burned into a rate-limited
// program at creation.
type RateLimitParams struct {
	OwnerPubKey types.HexBytes `json:"owner_pubkey"`
	Limit       uint64         `json:"limit"`
	Interval    uint64         `json:"interval"`
	OriginID    types.Hash     `json:"origin_id"`
}

// rateLimitDataSize is pubkey(33) | limit(8) | interval(8) | origin(32).
const rateLimitDataSize = crypto.PubKeySize + 8 + 8 + types.HashSize

// Validate checks the parameters are usable.
func (p RateLimitParams) Validate() error {
	if len(p.OwnerPubKey) != crypto.PubKeySize {
		return fmt.Errorf("owner pubkey must be %d bytes, got %d", crypto.PubKeySize, len(p.OwnerPubKey))
	}
	if p.Limit == 0 {
		return fmt.Errorf("limit must be positive")
	}
	if p.Interval == 0 {
		return fmt.Errorf("interval must be positive")
	}
	if p.OriginID.IsZero() {
		return fmt.Errorf("origin id is zero")
	}
	return nil
}

func (p RateLimitParams) encode() []byte {
	buf := make([]byte, 0, rateLimitDataSize)
	buf = append(buf, p.OwnerPubKey...)
	buf = binary.BigEndian.AppendUint64(buf, p.Limit)
	buf = binary.BigEndian.AppendUint64(buf, p.Interval)
	return append(buf, p.OriginID[:]...)
}

func decodeRateLimit(data []byte) (RateLimitParams, error) {
	if len(data) != rateLimitDataSize {
		return RateLimitParams{}, fmt.Errorf("%w: rate-limited data length %d, want %d",
			ErrMalformedProgram, len(data), rateLimitDataSize)
	}
	var p RateLimitParams
	p.OwnerPubKey = append(types.HexBytes(nil), data[:crypto.PubKeySize]...)
	off := crypto.PubKeySize
	p.Limit = binary.BigEndian.Uint64(data[off:])
	p.Interval = binary.BigEndian.Uint64(data[off+8:])
	copy(p.OriginID[:], data[off+16:])
	if p.Interval == 0 {
		return RateLimitParams{}, fmt.Errorf("%w: zero interval", ErrMalformedProgram)
	}
	return p, nil
}
