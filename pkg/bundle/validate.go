package bundle

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Validation errors.
var (
	ErrNoSpends       = errors.New("bundle has no spends")
	ErrDuplicateSpend = errors.New("duplicate coin spend")
	ErrTooManySpends  = errors.New("too many spends")
	ErrPuzzleHash     = errors.New("program does not match coin puzzle hash")
	ErrInvalidSig     = errors.New("invalid aggregate signature")
)

// MaxSpends bounds the number of coins one bundle may spend.
const MaxSpends = 1000

// Validate checks bundle structure without evaluating programs or
// looking at the ledger.
func (b *SpendBundle) Validate() error {
	if len(b.Spends) == 0 {
		return ErrNoSpends
	}
	if len(b.Spends) > MaxSpends {
		return fmt.Errorf("%w: %d spends, max %d", ErrTooManySpends, len(b.Spends), MaxSpends)
	}
	seen := make(map[types.Hash]bool, len(b.Spends))
	for i, s := range b.Spends {
		id := s.Coin.ID()
		if seen[id] {
			return fmt.Errorf("spend %d (%s): %w", i, id, ErrDuplicateSpend)
		}
		seen[id] = true
		if s.Puzzle.Hash() != s.Coin.PuzzleHash {
			return fmt.Errorf("spend %d (%s): %w", i, id, ErrPuzzleHash)
		}
	}
	if _, err := b.TotalInput(); err != nil {
		return err
	}
	return nil
}
