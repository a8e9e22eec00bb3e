// Package bundle defines spend bundles and their validation.
package bundle

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// CoinSpend reveals the program locking a coin and the solution it is
// evaluated with.
type CoinSpend struct {
	Coin     coin.Coin       `json:"coin"`
	Puzzle   puzzle.Program  `json:"puzzle"`
	Solution puzzle.Solution `json:"solution"`
}

// SpendBundle is the unit of submission: a set of coin spends that are
// accepted or rejected together, plus the signature authorizing them.
type SpendBundle struct {
	Spends    []CoinSpend               `json:"spends"`
	Signature crypto.AggregateSignature `json:"signature"`
}

// Name identifies the bundle. The signature is excluded so a bundle keeps
// its name while being signed.
func (b *SpendBundle) Name() types.Hash {
	return crypto.Hash(b.SpendBytes())
}

// SpendBytes returns the canonical serialization of the spends.
// Format: spend_count(4) | [coin(72) | program_len(4) | program | solution_len(4) | solution]...
func (b *SpendBundle) SpendBytes() []byte {
	var buf []byte
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.Spends)))
	for _, s := range b.Spends {
		buf = append(buf, s.Coin.Bytes()...)
		prog := s.Puzzle.Bytes()
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(prog)))
		buf = append(buf, prog...)
		sol := s.Solution.Bytes()
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(sol)))
		buf = append(buf, sol...)
	}
	return buf
}

// CoinIDs returns the ids of the coins the bundle spends, in spend order.
func (b *SpendBundle) CoinIDs() []types.Hash {
	ids := make([]types.Hash, len(b.Spends))
	for i, s := range b.Spends {
		ids[i] = s.Coin.ID()
	}
	return ids
}

// TotalInput returns the sum of the spent coin amounts.
func (b *SpendBundle) TotalInput() (uint64, error) {
	var total uint64
	for _, s := range b.Spends {
		if total > math.MaxUint64-s.Coin.Amount {
			return 0, fmt.Errorf("input value overflow")
		}
		total += s.Coin.Amount
	}
	return total, nil
}

// Merge combines bundles into one. Spends keep their order and the
// signatures are aggregated.
func Merge(bundles ...*SpendBundle) *SpendBundle {
	out := &SpendBundle{}
	sigs := make([]crypto.AggregateSignature, 0, len(bundles))
	for _, b := range bundles {
		if b == nil {
			continue
		}
		out.Spends = append(out.Spends, b.Spends...)
		sigs = append(sigs, b.Signature)
	}
	out.Signature = crypto.Aggregate(sigs...)
	return out
}

// Evaluate runs every spend through the engine and returns the conditions
// of each spend, in spend order.
func (b *SpendBundle) Evaluate(engine puzzle.Engine) ([][]puzzle.Condition, error) {
	out := make([][]puzzle.Condition, len(b.Spends))
	for i, s := range b.Spends {
		conds, err := engine.Evaluate(s.Puzzle, s.Coin, s.Solution)
		if err != nil {
			return nil, fmt.Errorf("spend %d (%s): %w", i, s.Coin.ID(), err)
		}
		out[i] = conds
	}
	return out, nil
}

// Additions returns the coins the bundle creates.
func (b *SpendBundle) Additions(engine puzzle.Engine) ([]coin.Coin, error) {
	conds, err := b.Evaluate(engine)
	if err != nil {
		return nil, err
	}
	return additions(b, conds), nil
}

func additions(b *SpendBundle, conds [][]puzzle.Condition) []coin.Coin {
	var out []coin.Coin
	for i, s := range b.Spends {
		parent := s.Coin.ID()
		for _, c := range conds[i] {
			if c.Op == puzzle.OpCreateCoin {
				out = append(out, coin.Coin{ParentCoinInfo: parent, PuzzleHash: c.PuzzleHash, Amount: c.Amount})
			}
		}
	}
	return out
}

// RequiredSignatures returns the (public key, message) pairs the bundle's
// signature must cover.
func (b *SpendBundle) RequiredSignatures(engine puzzle.Engine) ([]crypto.SignedMessage, error) {
	conds, err := b.Evaluate(engine)
	if err != nil {
		return nil, err
	}
	return signedMessages(conds), nil
}

func signedMessages(conds [][]puzzle.Condition) []crypto.SignedMessage {
	var out []crypto.SignedMessage
	for _, list := range conds {
		for _, c := range list {
			if c.Op == puzzle.OpAggSig {
				out = append(out, crypto.SignedMessage{PubKey: c.PubKey, Message: c.Message})
			}
		}
	}
	return out
}
