package wallet

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/walletstore"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Diff is the effect of one ApplyDiff call on the tracked coin set.
type Diff struct {
	Added     []walletstore.CoinRecord
	Removed   []coin.Coin
	Confirmed []walletstore.Reservation // reservations whose coin was removed
}

// Empty reports whether the diff changed nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Confirmed) == 0
}

// Tracker holds the confirmed coins a wallet owns and a set of
// reservations layered over them. A reserved coin stays confirmed until a
// ledger diff removes it; it is only hidden from selection.
//
// Not safe for concurrent use; the Wallet serializes access.
type Tracker struct {
	owns     func(puzzleHash types.Hash) bool
	coins    map[types.Hash]walletstore.CoinRecord
	reserved map[types.Hash]walletstore.Reservation

	balance       uint64
	reservedTotal uint64
}

// NewTracker creates an empty tracker keeping coins whose puzzle hash
// satisfies owns.
func NewTracker(owns func(types.Hash) bool) *Tracker {
	return &Tracker{
		owns:     owns,
		coins:    make(map[types.Hash]walletstore.CoinRecord),
		reserved: make(map[types.Hash]walletstore.Reservation),
	}
}

// restore loads persisted state. Reservations for unknown coins are dropped.
func (t *Tracker) restore(coins []walletstore.CoinRecord, reservations []walletstore.Reservation) {
	for _, rec := range coins {
		t.insert(rec)
	}
	for _, r := range reservations {
		if rec, ok := t.coins[r.CoinID]; ok {
			t.reserved[r.CoinID] = r
			t.reservedTotal += rec.Coin.Amount
		}
	}
}

// ApplyDiff applies one block's removals and then its additions.
// Removals of coins the wallet does not hold are ignored; additions are
// kept when the wallet owns their puzzle hash.
func (t *Tracker) ApplyDiff(height uint64, additions []coin.Coin, removals []types.Hash) Diff {
	d := t.diff(height, additions, removals)
	t.commitDiff(d)
	return d
}

// diff returns what ApplyDiff would change, without changing anything.
func (t *Tracker) diff(height uint64, additions []coin.Coin, removals []types.Hash) Diff {
	var d Diff
	gone := make(map[types.Hash]bool)
	for _, id := range removals {
		rec, ok := t.coins[id]
		if !ok || gone[id] {
			continue
		}
		gone[id] = true
		if r, ok := t.reserved[id]; ok {
			d.Confirmed = append(d.Confirmed, r)
		}
		d.Removed = append(d.Removed, rec.Coin)
	}
	added := make(map[types.Hash]bool)
	for _, c := range additions {
		if !t.owns(c.PuzzleHash) {
			continue
		}
		id := c.ID()
		if _, held := t.coins[id]; (held && !gone[id]) || added[id] {
			continue
		}
		added[id] = true
		d.Added = append(d.Added, walletstore.CoinRecord{Coin: c, Height: height})
	}
	return d
}

// commitDiff applies a diff built by diff against the current state.
func (t *Tracker) commitDiff(d Diff) {
	for _, r := range d.Confirmed {
		t.unreserve(r.CoinID)
	}
	for _, c := range d.Removed {
		t.remove(c.ID())
	}
	for _, rec := range d.Added {
		t.insert(rec)
	}
}

func (t *Tracker) insert(rec walletstore.CoinRecord) {
	t.coins[rec.Coin.ID()] = rec
	t.balance += rec.Coin.Amount
}

func (t *Tracker) remove(id types.Hash) {
	t.balance -= t.coins[id].Coin.Amount
	delete(t.coins, id)
}

func (t *Tracker) unreserve(id types.Hash) {
	t.reservedTotal -= t.coins[id].Coin.Amount
	delete(t.reserved, id)
}

// Balance returns the total of all confirmed coins, reserved or not.
func (t *Tracker) Balance() uint64 {
	return t.balance
}

// SpendableBalance returns the total of confirmed, unreserved coins.
func (t *Tracker) SpendableBalance() uint64 {
	return t.balance - t.reservedTotal
}

// Len returns the number of confirmed coins.
func (t *Tracker) Len() int {
	return len(t.coins)
}

// Get returns the record for a coin.
func (t *Tracker) Get(id types.Hash) (walletstore.CoinRecord, bool) {
	rec, ok := t.coins[id]
	return rec, ok
}

// Coins returns every confirmed coin ordered by amount then id.
func (t *Tracker) Coins() []coin.Coin {
	return t.collect(nil, true)
}

// Spendable returns the unreserved coins accepted by filter (nil accepts
// all), ordered by amount then id.
func (t *Tracker) Spendable(filter func(coin.Coin) bool) []coin.Coin {
	return t.collect(filter, false)
}

func (t *Tracker) collect(filter func(coin.Coin) bool, includeReserved bool) []coin.Coin {
	out := make([]coin.Coin, 0, len(t.coins))
	for id, rec := range t.coins {
		if _, r := t.reserved[id]; r && !includeReserved {
			continue
		}
		if filter != nil && !filter(rec.Coin) {
			continue
		}
		out = append(out, rec.Coin)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount < out[j].Amount
		}
		return out[i].ID().Less(out[j].ID())
	})
	return out
}

// IsReserved reports whether a coin is held by a pending bundle.
func (t *Tracker) IsReserved(id types.Hash) bool {
	_, ok := t.reserved[id]
	return ok
}

// checkReservable fails unless every id is a confirmed, unreserved coin.
func (t *Tracker) checkReservable(ids []types.Hash) error {
	seen := make(map[types.Hash]bool, len(ids))
	for _, id := range ids {
		if _, ok := t.coins[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCoin, id)
		}
		if t.IsReserved(id) || seen[id] {
			return fmt.Errorf("%w: coin %s", ErrSpendPending, id)
		}
		seen[id] = true
	}
	return nil
}

// reservations returns the records Reserve would create, without applying them.
func (t *Tracker) reservations(ids []types.Hash, bundle types.Hash, height uint64) ([]walletstore.Reservation, error) {
	if err := t.checkReservable(ids); err != nil {
		return nil, err
	}
	out := make([]walletstore.Reservation, len(ids))
	for i, id := range ids {
		out[i] = walletstore.Reservation{CoinID: id, Bundle: bundle, Height: height}
	}
	return out, nil
}

// Reserve hides coins from selection on behalf of a bundle.
func (t *Tracker) Reserve(ids []types.Hash, bundle types.Hash, height uint64) ([]walletstore.Reservation, error) {
	rs, err := t.reservations(ids, bundle, height)
	if err != nil {
		return nil, err
	}
	t.commitReservations(rs)
	return rs, nil
}

func (t *Tracker) commitReservations(rs []walletstore.Reservation) {
	for _, r := range rs {
		t.reserved[r.CoinID] = r
		t.reservedTotal += t.coins[r.CoinID].Coin.Amount
	}
}

// bundleReservations lists the reservations held by a bundle.
func (t *Tracker) bundleReservations(bundle types.Hash) []walletstore.Reservation {
	var out []walletstore.Reservation
	for _, r := range t.reserved {
		if r.Bundle == bundle {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out
}

// Release drops every reservation held by a bundle and returns them.
func (t *Tracker) Release(bundle types.Hash) []walletstore.Reservation {
	rs := t.bundleReservations(bundle)
	for _, r := range rs {
		t.unreserve(r.CoinID)
	}
	return rs
}

// expired lists reservations made at least expiry blocks before height.
// An expiry of zero never expires.
func (t *Tracker) expired(height, expiry uint64) []walletstore.Reservation {
	if expiry == 0 {
		return nil
	}
	var out []walletstore.Reservation
	for _, r := range t.reserved {
		if height >= r.Height && height-r.Height >= expiry {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out
}

// Expire drops reservations older than expiry blocks at height.
func (t *Tracker) Expire(height, expiry uint64) []walletstore.Reservation {
	rs := t.expired(height, expiry)
	t.releaseAll(rs)
	return rs
}

// expiredAfter is expired for the state after d is committed: reservations
// d confirms are not expired.
func (t *Tracker) expiredAfter(d Diff, height, expiry uint64) []walletstore.Reservation {
	confirmed := make(map[types.Hash]bool, len(d.Confirmed))
	for _, r := range d.Confirmed {
		confirmed[r.CoinID] = true
	}
	var out []walletstore.Reservation
	for _, r := range t.expired(height, expiry) {
		if !confirmed[r.CoinID] {
			out = append(out, r)
		}
	}
	return out
}

func (t *Tracker) releaseAll(rs []walletstore.Reservation) {
	for _, r := range rs {
		t.unreserve(r.CoinID)
	}
}

// hasAfter reports whether id is held once d is committed.
func (t *Tracker) hasAfter(d Diff, id types.Hash) bool {
	for _, rec := range d.Added {
		if rec.Coin.ID() == id {
			return true
		}
	}
	for _, c := range d.Removed {
		if c.ID() == id {
			return false
		}
	}
	_, ok := t.coins[id]
	return ok
}

// Reservations returns all reservations ordered by coin id.
func (t *Tracker) Reservations() []walletstore.Reservation {
	out := make([]walletstore.Reservation, 0, len(t.reserved))
	for _, r := range t.reserved {
		out = append(out, r)
	}
	sortReservations(out)
	return out
}

func sortReservations(rs []walletstore.Reservation) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].CoinID.Less(rs[j].CoinID) })
}
