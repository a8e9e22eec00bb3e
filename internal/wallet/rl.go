package wallet

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/log"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/ratelimit"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/walletstore"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// rateLimited holds the derived, immutable side of a rate-limited wallet.
// The mutable side (checkpoint, current coin, lineage) lives in meta.RL.
type rateLimited struct {
	desc       ratelimit.Descriptor
	acct       *ratelimit.Accountant
	program    puzzle.Program
	puzzleHash types.Hash
	aggProgram puzzle.Program
	aggHash    types.Hash
}

// RLStatus describes the rate-limited coin of a wallet.
type RLStatus struct {
	Descriptor            string
	PuzzleHash            types.Hash
	AggregationPuzzleHash types.Hash
	Coin                  *coin.Coin
	Checkpoint            uint64
	Height                uint64
	Available             uint64
	NextUnlock            uint64
	Deposits              uint64
	Pending               bool
}

// OwnerPubKey returns the public key a funder locks a rate-limited coin
// to. It is derived once, on first use, from the next key index.
func (w *Wallet) OwnerPubKey() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	meta := cloneMeta(w.meta)
	pub, err := w.ownerKey(&meta)
	if err != nil {
		return nil, err
	}
	if meta.NextIndex != w.meta.NextIndex {
		upd := w.store.NewUpdate()
		upd.PutMeta(meta)
		if err := upd.Commit(); err != nil {
			return nil, err
		}
		w.meta = meta
	}
	return pub, nil
}

// ownerKey returns the owner key, assigning an index in meta if needed.
func (w *Wallet) ownerKey(meta *walletstore.Meta) ([]byte, error) {
	if meta.OwnerIndex == nil {
		idx := meta.NextIndex
		meta.OwnerIndex = &idx
		meta.NextIndex++
	}
	return w.keys.Derive(*meta.OwnerIndex)
}

// InitRateLimited sets the wallet's rate-limited origin from a descriptor.
// It may be called once. The descriptor must have been built for this
// wallet's OwnerPubKey, and the wallet must learn it before syncing the
// block that creates the coin.
func (w *Wallet) InitRateLimited(desc ratelimit.Descriptor) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.rl != nil {
		return ErrAlreadyInitialized
	}
	if err := desc.Validate(); err != nil {
		return err
	}
	meta := cloneMeta(w.meta)
	pub, err := w.ownerKey(&meta)
	if err != nil {
		return err
	}
	rl, err := w.newRateLimited(desc, pub)
	if err != nil {
		return err
	}
	meta.RL = &walletstore.RLState{Descriptor: desc.String()}

	upd := w.store.NewUpdate()
	upd.PutMeta(meta)
	if err := upd.Commit(); err != nil {
		return err
	}
	w.meta = meta
	w.rl = rl

	w.logger.Info().
		Str("origin", desc.OriginID().String()).
		Str("rl_puzzle_hash", rl.puzzleHash.String()).
		Uint64("limit", desc.Limit).
		Uint64("interval", desc.Interval).
		Msg("Rate-limited origin set")
	return nil
}

func (w *Wallet) loadRateLimited(s string) (*rateLimited, error) {
	desc, err := ratelimit.ParseDescriptor(s)
	if err != nil {
		return nil, err
	}
	if w.meta.OwnerIndex == nil {
		return nil, fmt.Errorf("owner key index missing")
	}
	pub, err := w.keys.Derive(*w.meta.OwnerIndex)
	if err != nil {
		return nil, err
	}
	return w.newRateLimited(desc, pub)
}

func (w *Wallet) newRateLimited(desc ratelimit.Descriptor, ownerPub []byte) (*rateLimited, error) {
	acct, err := ratelimit.NewAccountant(desc.Limit, desc.Interval, log.WithWallet(log.RateLimit, w.name))
	if err != nil {
		return nil, err
	}
	prog := w.engine.RateLimited(desc.Params(ownerPub))
	ph := w.engine.Hash(prog)
	agg := w.engine.Aggregation(ph)
	return &rateLimited{
		desc:       desc,
		acct:       acct,
		program:    prog,
		puzzleHash: ph,
		aggProgram: agg,
		aggHash:    w.engine.Hash(agg),
	}, nil
}

// RLPuzzleHash returns the puzzle hash of the wallet's rate-limited coin.
func (w *Wallet) RLPuzzleHash() (types.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rl == nil {
		return types.Hash{}, ErrNotRateLimited
	}
	return w.rl.puzzleHash, nil
}

// AggregationPuzzleHash returns the puzzle hash deposits are sent to.
func (w *Wallet) AggregationPuzzleHash() (types.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rl == nil {
		return types.Hash{}, ErrNotRateLimited
	}
	return w.rl.aggHash, nil
}

// Available returns the amount the rate-limited coin can release at the
// current synced height. It is zero for a wallet without a rate-limited
// coin and while a rate-limited spend is pending.
func (w *Wallet) Available() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.availableLocked()
}

func (w *Wallet) availableLocked() uint64 {
	if w.rl == nil || w.meta.RL.Coin == nil {
		return 0
	}
	st := w.meta.RL
	if w.tracker.IsReserved(st.Coin.ID()) {
		return 0
	}
	capacity := st.Coin.Amount
	for _, d := range w.depositCoins(false) {
		if capacity+d.Amount < capacity {
			capacity = ^uint64(0)
			break
		}
		capacity += d.Amount
	}
	return w.rl.acct.Available(w.meta.Height, st.Checkpoint, capacity)
}

// RLBalance returns the value of the current rate-limited coin.
func (w *Wallet) RLBalance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rl == nil || w.meta.RL.Coin == nil {
		return 0
	}
	return w.meta.RL.Coin.Amount
}

// RateLimitStatus reports the rate-limited coin's state.
func (w *Wallet) RateLimitStatus() (RLStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rl == nil {
		return RLStatus{}, ErrNotRateLimited
	}
	st := w.meta.RL
	s := RLStatus{
		Descriptor:            st.Descriptor,
		PuzzleHash:            w.rl.puzzleHash,
		AggregationPuzzleHash: w.rl.aggHash,
		Checkpoint:            st.Checkpoint,
		Height:                w.meta.Height,
		Available:             w.availableLocked(),
	}
	for _, d := range w.depositCoins(true) {
		s.Deposits += d.Amount
	}
	if st.Coin != nil {
		c := *st.Coin
		s.Coin = &c
		s.Pending = w.tracker.IsReserved(c.ID())
		s.NextUnlock = w.rl.acct.NextUnlock(w.meta.Height, st.Checkpoint)
	}
	return s, nil
}

// depositCoins returns the tracked aggregation coins.
func (w *Wallet) depositCoins(includeReserved bool) []coin.Coin {
	isDeposit := func(c coin.Coin) bool { return c.PuzzleHash == w.rl.aggHash }
	if includeReserved {
		return w.tracker.collect(isDeposit, true)
	}
	return w.tracker.Spendable(isDeposit)
}

// SpendRateLimited pays amount from the rate-limited coin to destination.
// The spend absorbs every waiting deposit and creates exactly one
// successor coin holding the remainder.
func (w *Wallet) SpendRateLimited(amount uint64, destination types.Hash) (*bundle.SpendBundle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if err := w.checkRLCoin(); err != nil {
		return nil, err
	}
	if avail := w.availableLocked(); amount > avail {
		return nil, fmt.Errorf("%w: requested %d, available %d at height %d",
			ErrRateLimitExceeded, amount, avail, w.meta.Height)
	}
	return w.rateLimitedSpend(amount, destination)
}

// ConsolidateDeposits absorbs waiting deposits into the rate-limited coin
// without paying anything out. It returns nil when there is nothing to
// absorb.
func (w *Wallet) ConsolidateDeposits() (*bundle.SpendBundle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.consolidateLocked()
}

func (w *Wallet) consolidateLocked() (*bundle.SpendBundle, error) {
	if err := w.checkRLCoin(); err != nil {
		return nil, err
	}
	if len(w.depositCoins(false)) == 0 {
		return nil, nil
	}
	return w.rateLimitedSpend(0, types.Hash{})
}

func (w *Wallet) checkRLCoin() error {
	switch {
	case w.rl == nil:
		return ErrNotRateLimited
	case w.meta.RL.Coin == nil:
		return ErrNoRLCoin
	case w.tracker.IsReserved(w.meta.RL.Coin.ID()):
		return ErrSpendPending
	}
	return nil
}

func (w *Wallet) rateLimitedSpend(amount uint64, destination types.Hash) (*bundle.SpendBundle, error) {
	st := w.meta.RL
	rlCoin := *st.Coin
	deposits := w.depositCoins(false)

	sol := puzzle.Solution{
		Amount:      amount,
		Destination: destination,
		Deposits:    deposits,
	}
	if amount > 0 {
		sol.CoinAge = w.rl.acct.MinCoinAge(amount)
	}
	if st.Lineage != nil {
		l := *st.Lineage
		sol.Lineage = &l
	}

	b := bundle.NewBuilder().AddSpend(rlCoin, w.rl.program, sol)
	for _, d := range deposits {
		b.AddSpend(d, w.rl.aggProgram, puzzle.Solution{RLCoin: &rlCoin})
	}
	if err := w.signBuilder(b); err != nil {
		return nil, err
	}

	sb := b.Build()
	if err := w.reserve(sb, cloneMeta(w.meta)); err != nil {
		return nil, err
	}
	w.logger.Info().
		Str("bundle", sb.Name().String()).
		Str("destination", destination.String()).
		Uint64("amount", amount).
		Uint64("coin_age", sol.CoinAge).
		Int("deposits", len(deposits)).
		Msg("Rate-limited spend built")
	return sb, nil
}
