package wallet

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/ratelimit"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/walletstore"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// SpendRequest describes a standard payment.
type SpendRequest struct {
	Amount      uint64
	Destination types.Hash
	Fee         uint64
}

// FundRequest describes the creation of a rate-limited coin for another
// wallet's owner key.
type FundRequest struct {
	// Origin is the coin the rate-limited coin is created from. A zero
	// hash lets the wallet pick one.
	Origin      types.Hash
	OwnerPubKey []byte
	Limit       uint64
	Interval    uint64
	Amount      uint64
	Fee         uint64
}

// Spend builds a signed bundle paying req.Amount to req.Destination from
// the wallet's standard coins. Any remainder returns to a freshly derived
// puzzle hash. The consumed coins are reserved until the bundle is
// confirmed by sync, released, or expired.
func (w *Wallet) Spend(req SpendRequest) (*bundle.SpendBundle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spendLocked(req, nil)
}

// SpendFromCoin is Spend with originID selected first. The outputs are
// created by originID, so they are its children.
func (w *Wallet) SpendFromCoin(originID types.Hash, req SpendRequest) (*bundle.SpendBundle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spendLocked(req, &originID)
}

// FundRateLimited spends a standard coin into a new rate-limited coin
// owned by req.OwnerPubKey. It returns the bundle and the descriptor the
// owner needs to initialize their wallet.
func (w *Wallet) FundRateLimited(req FundRequest) (*bundle.SpendBundle, ratelimit.Descriptor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := crypto.ValidatePublicKey(req.OwnerPubKey); err != nil {
		return nil, ratelimit.Descriptor{}, fmt.Errorf("owner key: %w", err)
	}
	if req.Limit == 0 || req.Interval == 0 {
		return nil, ratelimit.Descriptor{}, ratelimit.ErrInvalidRate
	}

	origin := req.Origin
	if origin.IsZero() {
		target, err := addAmounts(req.Amount, req.Fee)
		if err != nil {
			return nil, ratelimit.Descriptor{}, err
		}
		sel, err := SelectCoins(w.tracker.Spendable(w.isStandard), target)
		if err != nil {
			return nil, ratelimit.Descriptor{}, err
		}
		origin = sel.Coins[0].ID()
	}
	rec, ok := w.tracker.Get(origin)
	if !ok || !w.isStandard(rec.Coin) {
		return nil, ratelimit.Descriptor{}, fmt.Errorf("%w: origin %s", ErrUnknownCoin, origin)
	}

	desc := ratelimit.Descriptor{Origin: rec.Coin, Limit: req.Limit, Interval: req.Interval}
	rlHash := w.engine.Hash(w.engine.RateLimited(desc.Params(req.OwnerPubKey)))

	sb, err := w.spendLocked(SpendRequest{Amount: req.Amount, Destination: rlHash, Fee: req.Fee}, &origin)
	if err != nil {
		return nil, ratelimit.Descriptor{}, err
	}
	w.logger.Info().
		Str("origin", origin.String()).
		Str("rl_puzzle_hash", rlHash.String()).
		Uint64("amount", req.Amount).
		Uint64("limit", req.Limit).
		Uint64("interval", req.Interval).
		Msg("Rate-limited coin funded")
	return sb, desc, nil
}

// Deposit sends amount to the aggregation puzzle of the rate-limited coin
// with puzzle hash rlPuzzleHash. The owner absorbs it on their next
// rate-limited spend or consolidation.
func (w *Wallet) Deposit(rlPuzzleHash types.Hash, amount, fee uint64) (*bundle.SpendBundle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dest := w.engine.Hash(w.engine.Aggregation(rlPuzzleHash))
	return w.spendLocked(SpendRequest{Amount: amount, Destination: dest, Fee: fee}, nil)
}

// Release drops the reservations held by a bundle that will not be
// submitted, making its coins selectable again.
func (w *Wallet) Release(sb *bundle.SpendBundle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := sb.Name()
	rs := w.tracker.bundleReservations(name)
	if len(rs) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownBundle, name)
	}
	upd := w.store.NewUpdate()
	for _, r := range rs {
		upd.DeleteReservation(r.CoinID)
	}
	if err := upd.Commit(); err != nil {
		return err
	}
	w.tracker.Release(name)
	w.logger.Info().Str("bundle", name.String()).Int("coins", len(rs)).Msg("Bundle released")
	return nil
}

func (w *Wallet) spendLocked(req SpendRequest, first *types.Hash) (*bundle.SpendBundle, error) {
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	target, err := addAmounts(req.Amount, req.Fee)
	if err != nil {
		return nil, err
	}

	sel, err := w.selectFor(target, first)
	if err != nil {
		return nil, err
	}

	meta := cloneMeta(w.meta)
	var (
		changeHash  types.Hash
		changeIndex uint32
	)
	if sel.Change > 0 {
		changeIndex = meta.NextIndex
		if changeHash, err = w.puzzleHashAt(changeIndex); err != nil {
			return nil, err
		}
		meta.NextIndex++
	}

	lead := sel.Coins[0]
	conds := []puzzle.Condition{puzzle.CreateCoin(req.Destination, req.Amount)}
	if sel.Change > 0 {
		conds = append(conds, puzzle.CreateCoin(changeHash, sel.Change))
	}
	for _, c := range sel.Coins[1:] {
		conds = append(conds, puzzle.AssertCoinConsumed(c.ID()))
	}

	b := bundle.NewBuilder()
	for i, c := range sel.Coins {
		prog, err := w.standardProgram(c)
		if err != nil {
			return nil, err
		}
		sol := puzzle.Solution{Conditions: conds}
		if i > 0 {
			sol = puzzle.Solution{Conditions: []puzzle.Condition{puzzle.AssertCoinConsumed(lead.ID())}}
		}
		b.AddSpend(c, prog, sol)
	}
	if err := w.signBuilder(b); err != nil {
		return nil, err
	}

	sb := b.Build()
	if err := w.reserve(sb, meta); err != nil {
		return nil, err
	}
	if sel.Change > 0 {
		w.puzzles[changeHash] = changeIndex
	}

	w.logger.Info().
		Str("bundle", sb.Name().String()).
		Str("destination", req.Destination.String()).
		Uint64("amount", req.Amount).
		Uint64("fee", req.Fee).
		Uint64("change", sel.Change).
		Int("inputs", len(sel.Coins)).
		Msg("Spend built")
	return sb, nil
}

// selectFor picks standard coins covering target, starting with first
// when it is set.
func (w *Wallet) selectFor(target uint64, first *types.Hash) (*CoinSelection, error) {
	candidates := w.tracker.Spendable(w.isStandard)
	if first == nil {
		return SelectCoins(candidates, target)
	}

	rec, ok := w.tracker.Get(*first)
	switch {
	case !ok || !w.isStandard(rec.Coin):
		return nil, fmt.Errorf("%w: %s", ErrUnknownCoin, *first)
	case w.tracker.IsReserved(*first):
		return nil, fmt.Errorf("%w: coin %s", ErrSpendPending, *first)
	}
	lead := rec.Coin
	if lead.Amount >= target {
		return &CoinSelection{Coins: []coin.Coin{lead}, Total: lead.Amount, Change: lead.Amount - target}, nil
	}

	rest := make([]coin.Coin, 0, len(candidates))
	for _, c := range candidates {
		if c.ID() != *first {
			rest = append(rest, c)
		}
	}
	sub, err := SelectCoins(rest, target-lead.Amount)
	if err != nil {
		return nil, err
	}
	total, carry := bits.Add64(lead.Amount, sub.Total, 0)
	if carry != 0 {
		return nil, fmt.Errorf("%w: input total overflows", ErrInvalidAmount)
	}
	return &CoinSelection{
		Coins:  append([]coin.Coin{lead}, sub.Coins...),
		Total:  total,
		Change: sub.Change,
	}, nil
}

func (w *Wallet) standardProgram(c coin.Coin) (puzzle.Program, error) {
	index, ok := w.puzzles[c.PuzzleHash]
	if !ok {
		return puzzle.Program{}, fmt.Errorf("%w: %s", ErrUnsignableCoin, c.ID())
	}
	pub, err := w.keys.Derive(index)
	if err != nil {
		return puzzle.Program{}, err
	}
	return w.engine.Standard(pub), nil
}

// signBuilder signs every message the bundle's spends require.
func (w *Wallet) signBuilder(b *bundle.Builder) error {
	err := b.Sign(w.engine, w.sign)
	if errors.Is(err, bundle.ErrNoSigner) {
		w.logger.Error().Err(err).Msg("Missing key for a wallet coin")
		return fmt.Errorf("%w: %v", ErrUnsignableCoin, err)
	}
	return err
}

// reserve persists the bundle's reservations together with meta, then
// applies both in memory. Nothing changes if persisting fails.
func (w *Wallet) reserve(sb *bundle.SpendBundle, meta walletstore.Meta) error {
	rs, err := w.tracker.reservations(sb.CoinIDs(), sb.Name(), w.meta.Height)
	if err != nil {
		return err
	}
	upd := w.store.NewUpdate()
	for _, r := range rs {
		upd.PutReservation(r)
	}
	upd.PutMeta(meta)
	if err := upd.Commit(); err != nil {
		return err
	}
	w.tracker.commitReservations(rs)
	w.meta = meta
	return nil
}

func addAmounts(amount, fee uint64) (uint64, error) {
	sum, carry := bits.Add64(amount, fee, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: amount plus fee overflows", ErrInvalidAmount)
	}
	return sum, nil
}
