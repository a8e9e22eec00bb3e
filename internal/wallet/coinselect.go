package wallet

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
)

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Coins  []coin.Coin // Selected coins, in spend order.
	Total  uint64      // Sum of selected amounts.
	Change uint64      // Total - target.
}

// SelectCoins chooses coins covering target. It tries two strategies:
//  1. Single coin: the smallest coin that covers the target.
//  2. Largest-first accumulation until the target is met.
//
// The strategy with less change wins; a tie goes to the single coin.
// Candidates are ordered by amount then id, so the result only depends on
// the set of coins passed in.
func SelectCoins(coins []coin.Coin, target uint64) (*CoinSelection, error) {
	if target == 0 {
		return nil, ErrInvalidAmount
	}

	candidates := make([]coin.Coin, 0, len(coins))
	for _, c := range coins {
		if c.Amount > 0 {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no coins, need %d", ErrInsufficientFunds, target)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Amount != candidates[j].Amount {
			return candidates[i].Amount < candidates[j].Amount
		}
		return candidates[i].ID().Less(candidates[j].ID())
	})

	var single *CoinSelection
	for _, c := range candidates {
		if c.Amount >= target {
			single = &CoinSelection{
				Coins:  []coin.Coin{c},
				Total:  c.Amount,
				Change: c.Amount - target,
			}
			break
		}
	}

	var accum *CoinSelection
	var selected []coin.Coin
	var total uint64
	for i := len(candidates) - 1; i >= 0; i-- {
		sum, carry := bits.Add64(total, candidates[i].Amount, 0)
		if carry != 0 {
			// Change would not fit in a coin; leave it to the single strategy.
			break
		}
		selected = append(selected, candidates[i])
		total = sum
		if total >= target {
			accum = &CoinSelection{
				Coins:  selected,
				Total:  total,
				Change: total - target,
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, target)
	}
}
