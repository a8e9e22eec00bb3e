package wallet

import (
	"math/rand"
	"testing"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

var (
	mine   = types.Hash{0x01}
	theirs = types.Hash{0x02}
)

func newMineTracker() *Tracker {
	return NewTracker(func(ph types.Hash) bool { return ph == mine })
}

func TestTracker_ApplyDiff(t *testing.T) {
	tr := newMineTracker()
	a := freshCoin(mine, 100)
	b := freshCoin(mine, 50)
	other := freshCoin(theirs, 1000)

	d := tr.ApplyDiff(1, []coin.Coin{a, b, other}, nil)
	if len(d.Added) != 2 {
		t.Fatalf("added = %d, want 2", len(d.Added))
	}
	if tr.Balance() != 150 {
		t.Errorf("balance = %d, want 150", tr.Balance())
	}
	if rec, ok := tr.Get(a.ID()); !ok || rec.Height != 1 {
		t.Errorf("Get(a) = %+v, %v", rec, ok)
	}

	// Unknown removals are ignored.
	d = tr.ApplyDiff(2, nil, []types.Hash{other.ID(), {0xFF}})
	if !d.Empty() {
		t.Errorf("removing foreign coins should change nothing, got %+v", d)
	}

	d = tr.ApplyDiff(3, nil, []types.Hash{a.ID()})
	if len(d.Removed) != 1 || d.Removed[0] != a {
		t.Errorf("removed = %v", d.Removed)
	}
	if tr.Balance() != 50 {
		t.Errorf("balance = %d, want 50", tr.Balance())
	}
}

func TestTracker_RemovalBeforeAddition(t *testing.T) {
	tr := newMineTracker()
	c := freshCoin(mine, 10)
	tr.ApplyDiff(1, []coin.Coin{c}, nil)

	d := tr.ApplyDiff(2, []coin.Coin{c}, []types.Hash{c.ID()})
	if len(d.Removed) != 1 || len(d.Added) != 1 {
		t.Fatalf("diff = %+v, want one removal then one addition", d)
	}
	rec, ok := tr.Get(c.ID())
	if !ok || rec.Height != 2 {
		t.Errorf("recreated coin = %+v, %v; want height 2", rec, ok)
	}
	if tr.Balance() != 10 {
		t.Errorf("balance = %d, want 10", tr.Balance())
	}
}

func TestTracker_DuplicateAdditionIgnored(t *testing.T) {
	tr := newMineTracker()
	c := freshCoin(mine, 10)
	tr.ApplyDiff(1, []coin.Coin{c, c}, nil)
	tr.ApplyDiff(2, []coin.Coin{c}, nil)
	if tr.Balance() != 10 || tr.Len() != 1 {
		t.Errorf("balance = %d len = %d, want 10 and 1", tr.Balance(), tr.Len())
	}
}

func TestTracker_Reservations(t *testing.T) {
	tr := newMineTracker()
	a := freshCoin(mine, 100)
	b := freshCoin(mine, 40)
	tr.ApplyDiff(1, []coin.Coin{a, b}, nil)

	bundleA := types.Hash{0xA1}
	if _, err := tr.Reserve([]types.Hash{a.ID()}, bundleA, 1); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if tr.SpendableBalance() != 40 || tr.Balance() != 140 {
		t.Errorf("spendable = %d balance = %d, want 40 and 140", tr.SpendableBalance(), tr.Balance())
	}
	if got := tr.Spendable(nil); len(got) != 1 || got[0] != b {
		t.Errorf("Spendable = %v, want only b", got)
	}
	if len(tr.Coins()) != 2 {
		t.Error("Coins should include reserved coins")
	}

	if _, err := tr.Reserve([]types.Hash{a.ID()}, types.Hash{0xA2}, 1); err == nil {
		t.Error("reserving a reserved coin should fail")
	}
	if _, err := tr.Reserve([]types.Hash{{0x99}}, types.Hash{0xA2}, 1); err == nil {
		t.Error("reserving an unknown coin should fail")
	}
	if _, err := tr.Reserve([]types.Hash{b.ID(), b.ID()}, types.Hash{0xA2}, 1); err == nil {
		t.Error("reserving a coin twice in one call should fail")
	}
	if tr.IsReserved(b.ID()) {
		t.Error("failed Reserve must not reserve anything")
	}

	released := tr.Release(bundleA)
	if len(released) != 1 || tr.SpendableBalance() != 140 {
		t.Errorf("Release = %v, spendable = %d", released, tr.SpendableBalance())
	}
	if len(tr.Release(bundleA)) != 0 {
		t.Error("second Release should find nothing")
	}
}

func TestTracker_RemovalConfirmsReservation(t *testing.T) {
	tr := newMineTracker()
	a := freshCoin(mine, 100)
	tr.ApplyDiff(1, []coin.Coin{a}, nil)
	tr.Reserve([]types.Hash{a.ID()}, types.Hash{0xB1}, 1)

	d := tr.ApplyDiff(2, nil, []types.Hash{a.ID()})
	if len(d.Confirmed) != 1 || d.Confirmed[0].Bundle != (types.Hash{0xB1}) {
		t.Errorf("confirmed = %v", d.Confirmed)
	}
	if len(tr.Reservations()) != 0 || tr.SpendableBalance() != 0 || tr.Balance() != 0 {
		t.Error("confirmed coin should leave both sets")
	}
}

func TestTracker_Expire(t *testing.T) {
	tr := newMineTracker()
	a := freshCoin(mine, 100)
	tr.ApplyDiff(1, []coin.Coin{a}, nil)
	tr.Reserve([]types.Hash{a.ID()}, types.Hash{0xC1}, 5)

	if got := tr.Expire(100, 0); len(got) != 0 {
		t.Error("zero expiry should never expire")
	}
	if got := tr.Expire(7, 3); len(got) != 0 {
		t.Error("reservation should survive two blocks with expiry 3")
	}
	if got := tr.Expire(8, 3); len(got) != 1 {
		t.Errorf("Expire(8, 3) = %v, want one reservation", got)
	}
	if tr.IsReserved(a.ID()) {
		t.Error("expired coin should be spendable")
	}
}

func TestTracker_DiffIsPure(t *testing.T) {
	tr := newMineTracker()
	a := freshCoin(mine, 100)
	b := freshCoin(mine, 40)
	tr.ApplyDiff(1, []coin.Coin{a}, nil)
	tr.Reserve([]types.Hash{a.ID()}, types.Hash{0xD1}, 1)

	d := tr.diff(2, []coin.Coin{b}, []types.Hash{a.ID()})
	if len(d.Added) != 1 || len(d.Removed) != 1 || len(d.Confirmed) != 1 {
		t.Fatalf("diff = %+v", d)
	}
	if tr.Balance() != 100 || !tr.IsReserved(a.ID()) || tr.Len() != 1 {
		t.Fatal("diff changed the tracker")
	}
	if tr.hasAfter(d, a.ID()) || !tr.hasAfter(d, b.ID()) {
		t.Error("hasAfter should see the state after the diff")
	}
	if got := tr.expiredAfter(d, 10, 2); len(got) != 0 {
		t.Errorf("confirmed reservation reported expired: %v", got)
	}

	tr.commitDiff(d)
	if tr.Balance() != 40 || len(tr.Reservations()) != 0 {
		t.Errorf("after commit balance = %d reservations = %d", tr.Balance(), len(tr.Reservations()))
	}
}

// Conservation: the balance always equals the sum of owned coins added
// minus those removed.
func TestTracker_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tr := newMineTracker()
	live := make(map[types.Hash]coin.Coin)
	var all []coin.Coin

	for h := uint64(0); h < 200; h++ {
		var adds []coin.Coin
		for i := rng.Intn(4); i > 0; i-- {
			ph := mine
			if rng.Intn(3) == 0 {
				ph = theirs
			}
			c := freshCoin(ph, uint64(rng.Intn(1000)))
			adds = append(adds, c)
			all = append(all, c)
		}
		var removals []types.Hash
		for i := rng.Intn(3); i > 0 && len(all) > 0; i-- {
			removals = append(removals, all[rng.Intn(len(all))].ID())
		}
		if rng.Intn(5) == 0 && len(live) > 0 {
			for id := range live {
				tr.Reserve([]types.Hash{id}, types.Hash{byte(h)}, h)
				break
			}
		}

		tr.ApplyDiff(h, adds, removals)
		for _, id := range removals {
			delete(live, id)
		}
		for _, c := range adds {
			if c.PuzzleHash == mine {
				live[c.ID()] = c
			}
		}

		var want uint64
		for _, c := range live {
			want += c.Amount
		}
		if tr.Balance() != want {
			t.Fatalf("height %d: balance = %d, want %d", h, tr.Balance(), want)
		}
		var reserved uint64
		for _, r := range tr.Reservations() {
			rec, _ := tr.Get(r.CoinID)
			reserved += rec.Coin.Amount
		}
		if tr.SpendableBalance() != want-reserved {
			t.Fatalf("height %d: spendable = %d, want %d", h, tr.SpendableBalance(), want-reserved)
		}
	}
}
