package ratelimit

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// ErrMalformedDescriptor is returned when a descriptor string cannot be parsed.
var ErrMalformedDescriptor = errors.New("malformed rate-limit descriptor")

// descriptorFields is the number of colon-separated fields.
const descriptorFields = 6

// Descriptor is the initialization string a funder hands to the owner of a
// rate-limited coin. It names the origin coin the first rate-limited coin
// is created from and the rate burned into the program.
//
// Format: parent_hex:puzzle_hash_hex:amount:origin_id_hex:limit:interval
type Descriptor struct {
	Origin   coin.Coin
	Limit    uint64
	Interval uint64
}

// OriginID returns the id of the origin coin.
func (d Descriptor) OriginID() types.Hash {
	return d.Origin.ID()
}

// Validate checks the rate is usable.
func (d Descriptor) Validate() error {
	if d.Limit == 0 || d.Interval == 0 {
		return ErrInvalidRate
	}
	return nil
}

// Params returns the program parameters for an owner public key.
func (d Descriptor) Params(ownerPubKey []byte) puzzle.RateLimitParams {
	return puzzle.RateLimitParams{
		OwnerPubKey: append(types.HexBytes(nil), ownerPubKey...),
		Limit:       d.Limit,
		Interval:    d.Interval,
		OriginID:    d.OriginID(),
	}
}

// String returns the canonical descriptor string.
func (d Descriptor) String() string {
	return strings.Join([]string{
		d.Origin.ParentCoinInfo.String(),
		d.Origin.PuzzleHash.String(),
		strconv.FormatUint(d.Origin.Amount, 10),
		d.OriginID().String(),
		strconv.FormatUint(d.Limit, 10),
		strconv.FormatUint(d.Interval, 10),
	}, ":")
}

// ParseDescriptor parses a descriptor string. Only the canonical form is
// accepted: lowercase hex, decimal integers without sign or leading zeros,
// an origin id that matches the origin coin, and no surrounding
// whitespace. Parsing then formatting therefore reproduces the input
// exactly.
func ParseDescriptor(s string) (Descriptor, error) {
	if s != strings.TrimSpace(s) {
		return Descriptor{}, fmt.Errorf("%w: surrounding whitespace", ErrMalformedDescriptor)
	}
	parts := strings.Split(s, ":")
	if len(parts) != descriptorFields {
		return Descriptor{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformedDescriptor, len(parts), descriptorFields)
	}

	parent, err := parseHash(parts[0])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: parent: %v", ErrMalformedDescriptor, err)
	}
	ph, err := parseHash(parts[1])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: puzzle hash: %v", ErrMalformedDescriptor, err)
	}
	amount, err := parseUint(parts[2])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: amount: %v", ErrMalformedDescriptor, err)
	}
	id, err := parseHash(parts[3])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: origin id: %v", ErrMalformedDescriptor, err)
	}
	limit, err := parseUint(parts[4])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: limit: %v", ErrMalformedDescriptor, err)
	}
	interval, err := parseUint(parts[5])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: interval: %v", ErrMalformedDescriptor, err)
	}

	d := Descriptor{
		Origin:   coin.Coin{ParentCoinInfo: parent, PuzzleHash: ph, Amount: amount},
		Limit:    limit,
		Interval: interval,
	}
	if d.OriginID() != id {
		return Descriptor{}, fmt.Errorf("%w: origin id %s does not match coin %s", ErrMalformedDescriptor, id, d.OriginID())
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	return d, nil
}

func parseHash(s string) (types.Hash, error) {
	if len(s) != types.HashSize*2 {
		return types.Hash{}, fmt.Errorf("length %d, want %d", len(s), types.HashSize*2)
	}
	if strings.ToLower(s) != s {
		return types.Hash{}, fmt.Errorf("hex must be lowercase")
	}
	var h types.Hash
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return types.Hash{}, err
	}
	return h, nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in %q", s)
	}
	if s[0] == '+' {
		return 0, fmt.Errorf("sign not allowed")
	}
	return strconv.ParseUint(s, 10, 64)
}
