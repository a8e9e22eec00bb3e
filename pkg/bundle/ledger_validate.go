package bundle

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Ledger-aware validation errors.
var (
	ErrCoinNotFound      = errors.New("spent coin not found")
	ErrConditionFailed   = errors.New("condition failed")
	ErrDuplicateAddition = errors.New("duplicate coin addition")
	ErrInsufficientFee   = errors.New("outputs exceed inputs")
	ErrOutputOverflow    = errors.New("output values overflow")
)

// CoinView provides read-only access to the unspent coin set.
type CoinView interface {
	// GetCoin returns an unspent coin and the height it was confirmed at.
	GetCoin(id types.Hash) (c coin.Coin, height uint64, err error)
	HasCoin(id types.Hash) bool
}

// Result is the outcome of validating a bundle against a coin view.
type Result struct {
	Fee       uint64
	Additions []coin.Coin
}

// ValidateWithView performs full validation of a bundle at the given
// height. It checks that every spent coin is unspent, evaluates every
// program, enforces the emitted conditions, verifies the aggregate
// signature and checks created value does not exceed spent value.
func (b *SpendBundle) ValidateWithView(engine puzzle.Engine, view CoinView, height uint64) (*Result, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	spent := make(map[types.Hash]bool, len(b.Spends))
	birth := make([]uint64, len(b.Spends))
	for i, s := range b.Spends {
		id := s.Coin.ID()
		if !view.HasCoin(id) {
			return nil, fmt.Errorf("spend %d (%s): %w", i, id, ErrCoinNotFound)
		}
		_, h, err := view.GetCoin(id)
		if err != nil {
			return nil, fmt.Errorf("spend %d: %w", i, err)
		}
		birth[i] = h
		spent[id] = true
	}

	conds, err := b.Evaluate(engine)
	if err != nil {
		return nil, err
	}

	for i, s := range b.Spends {
		for _, c := range conds[i] {
			if err := checkCondition(c, s.Coin, spent, birth[i], height); err != nil {
				return nil, fmt.Errorf("spend %d (%s): %w", i, s.Coin.ID(), err)
			}
		}
	}

	if !b.Signature.Verify(signedMessages(conds)) {
		return nil, ErrInvalidSig
	}

	adds := additions(b, conds)
	seen := make(map[types.Hash]bool, len(adds))
	var totalOut uint64
	for _, a := range adds {
		id := a.ID()
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddition, id)
		}
		seen[id] = true
		if totalOut > math.MaxUint64-a.Amount {
			return nil, ErrOutputOverflow
		}
		totalOut += a.Amount
	}

	totalIn, err := b.TotalInput()
	if err != nil {
		return nil, err
	}
	if totalIn < totalOut {
		return nil, fmt.Errorf("%w: inputs=%d outputs=%d", ErrInsufficientFee, totalIn, totalOut)
	}
	return &Result{Fee: totalIn - totalOut, Additions: adds}, nil
}

func checkCondition(c puzzle.Condition, self coin.Coin, spent map[types.Hash]bool, birth, height uint64) error {
	switch c.Op {
	case puzzle.OpAssertCoinConsumed:
		if !spent[c.CoinID] {
			return fmt.Errorf("%w: %s: coin %s not spent in bundle", ErrConditionFailed, c.Op, c.CoinID)
		}
	case puzzle.OpAssertMyParentID:
		if self.ParentCoinInfo != c.CoinID {
			return fmt.Errorf("%w: %s: parent is %s, want %s", ErrConditionFailed, c.Op, self.ParentCoinInfo, c.CoinID)
		}
	case puzzle.OpAssertCoinAge:
		if height < birth || height-birth < c.Blocks {
			return fmt.Errorf("%w: %s: coin confirmed at %d, %d blocks required at height %d",
				ErrConditionFailed, c.Op, birth, c.Blocks, height)
		}
	}
	return nil
}
