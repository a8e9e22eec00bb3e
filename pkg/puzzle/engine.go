package puzzle

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Evaluation errors. A spend whose program fails to evaluate is invalid.
var (
	ErrPuzzleMismatch = errors.New("program does not hash to coin puzzle hash")
	ErrBadSolution    = errors.New("solution rejected by program")
	ErrRateExceeded   = errors.New("amount exceeds rate-limited allowance")
)

// Engine builds, hashes and evaluates locking programs.
type Engine interface {
	// Standard returns the pay-to-public-key program for pubKey.
	Standard(pubKey []byte) Program
	// RateLimited returns the rate-limited program for the given parameters.
	RateLimited(params RateLimitParams) Program
	// Aggregation returns the program whose coins can only be absorbed
	// into the rate-limited coin with puzzle hash rlPuzzleHash.
	Aggregation(rlPuzzleHash types.Hash) Program
	// Hash returns the puzzle hash of a program.
	Hash(p Program) types.Hash
	// Evaluate runs p against solution s for coin c and returns the
	// conditions the spend imposes.
	Evaluate(p Program, c coin.Coin, s Solution) ([]Condition, error)
}

// Reference is the engine the ledger evaluates spends with.
type Reference struct{}

// NewEngine returns the reference engine.
func NewEngine() *Reference {
	return &Reference{}
}

// Standard returns the pay-to-public-key program for pubKey.
func (e *Reference) Standard(pubKey []byte) Program {
	return Program{Kind: KindStandard, Data: append(types.HexBytes(nil), pubKey...)}
}

// RateLimited returns the rate-limited program for params.
func (e *Reference) RateLimited(params RateLimitParams) Program {
	return Program{Kind: KindRateLimited, Data: params.encode()}
}

// Aggregation returns the deposit program for a rate-limited puzzle hash.
func (e *Reference) Aggregation(rlPuzzleHash types.Hash) Program {
	return Program{Kind: KindAggregation, Data: rlPuzzleHash.Bytes()}
}

// Hash returns the puzzle hash of p.
func (e *Reference) Hash(p Program) types.Hash {
	return p.Hash()
}

// Evaluate runs p against s for coin c.
func (e *Reference) Evaluate(p Program, c coin.Coin, s Solution) ([]Condition, error) {
	if p.Hash() != c.PuzzleHash {
		return nil, ErrPuzzleMismatch
	}
	switch p.Kind {
	case KindStandard:
		return e.evalStandard(p, c, s)
	case KindRateLimited:
		return e.evalRateLimited(p, c, s)
	case KindAggregation:
		return e.evalAggregation(p, s)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, uint8(p.Kind))
	}
}

// evalStandard passes the owner's conditions through and requires the
// owner's signature over them.
func (e *Reference) evalStandard(p Program, c coin.Coin, s Solution) ([]Condition, error) {
	if len(p.Data) != crypto.PubKeySize {
		return nil, fmt.Errorf("%w: standard data length %d", ErrMalformedProgram, len(p.Data))
	}
	conds := make([]Condition, 0, len(s.Conditions)+1)
	for _, cond := range s.Conditions {
		if cond.Op == OpAggSig {
			return nil, fmt.Errorf("%w: solution may not inject signatures", ErrBadSolution)
		}
		conds = append(conds, cond)
	}
	msg := crypto.HashConcat(c.ID(), ConditionsHash(s.Conditions))
	return append(conds, AggSig(p.Data, msg)), nil
}

func (e *Reference) evalRateLimited(p Program, c coin.Coin, s Solution) ([]Condition, error) {
	params, err := decodeRateLimit(p.Data)
	if err != nil {
		return nil, err
	}
	self := c.PuzzleHash
	var conds []Condition

	// Singleton lineage: the first coin is a child of the origin, every
	// later coin a child of a coin with the same puzzle hash.
	if s.Lineage == nil {
		conds = append(conds, AssertMyParentID(params.OriginID))
	} else {
		parent := coin.Coin{ParentCoinInfo: s.Lineage.ParentCoinInfo, PuzzleHash: self, Amount: s.Lineage.Amount}
		conds = append(conds, AssertMyParentID(parent.ID()))
	}

	aggHash := e.Aggregation(self).Hash()
	total := c.Amount
	for _, d := range s.Deposits {
		if d.PuzzleHash != aggHash {
			return nil, fmt.Errorf("%w: deposit %s is not an aggregation coin", ErrBadSolution, d.ID())
		}
		if total+d.Amount < total {
			return nil, fmt.Errorf("%w: deposit overflow", ErrBadSolution)
		}
		total += d.Amount
		conds = append(conds, AssertCoinConsumed(d.ID()))
	}

	if s.Amount > total {
		return nil, fmt.Errorf("%w: amount %d exceeds coin value %d", ErrBadSolution, s.Amount, total)
	}
	if s.Amount > 0 {
		if s.Amount > Allowance(s.CoinAge, params.Limit, params.Interval) {
			return nil, fmt.Errorf("%w: %d at age %d (limit %d per %d)",
				ErrRateExceeded, s.Amount, s.CoinAge, params.Limit, params.Interval)
		}
		conds = append(conds,
			AssertCoinAge(s.CoinAge),
			CreateCoin(s.Destination, s.Amount),
		)
	}

	conds = append(conds, CreateCoin(self, total-s.Amount))

	// Consolidation moves no value out, so anyone may trigger it.
	if s.Amount > 0 {
		conds = append(conds, AggSig(params.OwnerPubKey, crypto.HashConcat(c.ID(), s.Hash())))
	}
	return conds, nil
}

func (e *Reference) evalAggregation(p Program, s Solution) ([]Condition, error) {
	if len(p.Data) != types.HashSize {
		return nil, fmt.Errorf("%w: aggregation data length %d", ErrMalformedProgram, len(p.Data))
	}
	if s.RLCoin == nil {
		return nil, fmt.Errorf("%w: missing rate-limited coin", ErrBadSolution)
	}
	var rlHash types.Hash
	copy(rlHash[:], p.Data)
	if s.RLCoin.PuzzleHash != rlHash {
		return nil, fmt.Errorf("%w: deposit targets %s, not %s", ErrBadSolution, s.RLCoin.PuzzleHash, rlHash)
	}
	return []Condition{AssertCoinConsumed(s.RLCoin.ID())}, nil
}

// Allowance is the amount a rate-limited coin of the given age may release:
// one Limit per whole Interval, saturating at MaxUint64.
func Allowance(age, limit, interval uint64) uint64 {
	if interval == 0 {
		return 0
	}
	hi, lo := bits.Mul64(age/interval, limit)
	if hi != 0 {
		return ^uint64(0)
	}
	return lo
}
