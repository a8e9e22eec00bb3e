package bundle

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// ErrNoSigner is returned when no key is known for a required public key.
var ErrNoSigner = errors.New("no signer for public key")

// SignFunc signs msg with the key behind pubKey. It returns ErrNoSigner
// when the key is unknown.
type SignFunc func(pubKey []byte, msg types.Hash) (crypto.AggregateSignature, error)

// KeySigner adapts a private key lookup to a SignFunc.
func KeySigner(lookup func(pubKey []byte) (*crypto.PrivateKey, error)) SignFunc {
	return func(pubKey []byte, msg types.Hash) (crypto.AggregateSignature, error) {
		key, err := lookup(pubKey)
		if err != nil {
			return nil, err
		}
		return key.Sign(msg)
	}
}

// Builder constructs spend bundles incrementally.
type Builder struct {
	b *SpendBundle
}

// NewBuilder creates a new bundle builder.
func NewBuilder() *Builder {
	return &Builder{b: &SpendBundle{}}
}

// AddSpend adds a coin spend.
func (b *Builder) AddSpend(c coin.Coin, p puzzle.Program, s puzzle.Solution) *Builder {
	b.b.Spends = append(b.b.Spends, CoinSpend{Coin: c, Puzzle: p, Solution: s})
	return b
}

// Sign evaluates every spend and signs each required message with the key
// for its public key. The partial signatures are aggregated into the
// bundle signature.
func (b *Builder) Sign(engine puzzle.Engine, sign SignFunc) error {
	required, err := b.b.RequiredSignatures(engine)
	if err != nil {
		return err
	}

	type sigKey struct {
		pub string
		msg types.Hash
	}
	done := make(map[sigKey]bool, len(required))
	parts := []crypto.AggregateSignature{b.b.Signature}
	for _, req := range required {
		k := sigKey{pub: string(req.PubKey), msg: req.Message}
		if done[k] {
			continue
		}
		sig, err := sign(req.PubKey, req.Message)
		if err != nil {
			return fmt.Errorf("sign for pubkey %x: %w", req.PubKey, err)
		}
		parts = append(parts, sig)
		done[k] = true
	}
	b.b.Signature = crypto.Aggregate(parts...)
	return nil
}

// Build returns the constructed bundle.
// Does NOT validate. Call ValidateWithView separately.
func (b *Builder) Build() *SpendBundle {
	return b.b
}
