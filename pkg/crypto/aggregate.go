package crypto

import (
	"bytes"
	"sort"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// PartialSignature is one signer's contribution to an aggregate.
type PartialSignature struct {
	PubKey    types.HexBytes `json:"pubkey"`
	Signature types.HexBytes `json:"signature"`
}

// SignedMessage is a (public key, message) pair an aggregate must cover.
type SignedMessage struct {
	PubKey  []byte
	Message types.Hash
}

// AggregateSignature combines the signatures authorizing a spend bundle.
// Schnorr signatures do not compress, so the aggregate is the canonically
// ordered set of partial signatures.
type AggregateSignature []PartialSignature

// Aggregate merges partial signatures and existing aggregates into one
// aggregate. Duplicates are dropped and the result is sorted by public key
// then signature, so the output does not depend on argument order.
func Aggregate(parts ...AggregateSignature) AggregateSignature {
	var out AggregateSignature
	for _, p := range parts {
		out = append(out, p...)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].PubKey, out[j].PubKey); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Signature, out[j].Signature) < 0
	})
	var dedup AggregateSignature
	for _, p := range out {
		if n := len(dedup); n > 0 && bytes.Equal(p.PubKey, dedup[n-1].PubKey) && bytes.Equal(p.Signature, dedup[n-1].Signature) {
			continue
		}
		dedup = append(dedup, p)
	}
	if len(dedup) == 0 {
		return nil
	}
	return dedup
}

// Verify reports whether every required pair is covered by a valid partial
// signature and every partial signature covers some required pair.
func (a AggregateSignature) Verify(required []SignedMessage) bool {
	used := make([]bool, len(a))
	for _, req := range required {
		found := false
		for i, p := range a {
			if !bytes.Equal(p.PubKey, req.PubKey) {
				continue
			}
			if Verify(p.PubKey, req.Message, p.Signature) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, u := range used {
		if !u {
			return false
		}
	}
	return true
}
