package wallet

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// newTestWallet opens an in-memory wallet. The passphrase selects the seed,
// so two wallets with different passphrases own different keys.
func newTestWallet(t *testing.T, name, passphrase string, opts ...func(*Config)) *Wallet {
	t.Helper()
	nop := zerolog.Nop()
	cfg := Config{Name: name, Seed: otherSeed(t, passphrase), Logger: &nop}
	for _, opt := range opts {
		opt(&cfg)
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func mustPuzzleHash(t *testing.T, w *Wallet) types.Hash {
	t.Helper()
	ph, err := w.NewPuzzleHash()
	if err != nil {
		t.Fatalf("NewPuzzleHash: %v", err)
	}
	return ph
}

var parentCounter uint64

// freshCoin returns a coin with a unique parent.
func freshCoin(ph types.Hash, amount uint64) coin.Coin {
	parentCounter++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], parentCounter)
	return coin.Coin{ParentCoinInfo: crypto.Hash(buf[:]), PuzzleHash: ph, Amount: amount}
}

func headerAt(height uint64) types.Hash {
	return crypto.Hash([]byte(fmt.Sprintf("block-%d", height)))
}

type chainCoin struct {
	coin   coin.Coin
	height uint64
}

// testChain is a minimal ledger: it validates bundles against its coin set
// and feeds every block to the attached wallets.
type testChain struct {
	t       *testing.T
	engine  puzzle.Engine
	coins   map[types.Hash]chainCoin
	height  uint64
	started bool
	wallets []*Wallet
}

func newTestChain(t *testing.T, wallets ...*Wallet) *testChain {
	return &testChain{
		t:       t,
		engine:  puzzle.NewEngine(),
		coins:   make(map[types.Hash]chainCoin),
		wallets: wallets,
	}
}

func (c *testChain) GetCoin(id types.Hash) (coin.Coin, uint64, error) {
	e, ok := c.coins[id]
	if !ok {
		return coin.Coin{}, 0, fmt.Errorf("coin %s not found", id)
	}
	return e.coin, e.height, nil
}

func (c *testChain) HasCoin(id types.Hash) bool {
	_, ok := c.coins[id]
	return ok
}

func (c *testChain) nextHeight() uint64 {
	if !c.started {
		return c.height
	}
	return c.height + 1
}

// validate checks a bundle as if it were included in the next block.
func (c *testChain) validate(b *bundle.SpendBundle) error {
	_, err := b.ValidateWithView(c.engine, c, c.nextHeight())
	return err
}

// block mines the next block with the given coinbase additions and
// bundles, applies it to every wallet and returns their follow-ups.
func (c *testChain) block(adds []coin.Coin, bundles ...*bundle.SpendBundle) []*bundle.SpendBundle {
	c.t.Helper()
	h := c.nextHeight()
	delta := BlockDelta{Height: h, Header: headerAt(h), Additions: append([]coin.Coin(nil), adds...)}
	if c.started {
		delta.PrevHeader = headerAt(c.height)
	}
	for _, b := range bundles {
		res, err := b.ValidateWithView(c.engine, c, h)
		if err != nil {
			c.t.Fatalf("bundle %s rejected at height %d: %v", b.Name(), h, err)
		}
		for _, s := range b.Spends {
			delta.Removals = append(delta.Removals, s.Coin)
			delete(c.coins, s.Coin.ID())
		}
		delta.Additions = append(delta.Additions, res.Additions...)
	}
	for _, a := range delta.Additions {
		c.coins[a.ID()] = chainCoin{coin: a, height: h}
	}
	c.height = h
	c.started = true

	var followUps []*bundle.SpendBundle
	for _, w := range c.wallets {
		fu, err := w.ApplyBlock(delta)
		if err != nil {
			c.t.Fatalf("%s ApplyBlock(%d): %v", w.Name(), h, err)
		}
		followUps = append(followUps, fu...)
	}
	return followUps
}

// advanceTo mines empty blocks until the chain is at height.
func (c *testChain) advanceTo(height uint64) {
	c.t.Helper()
	for !c.started || c.height < height {
		c.block(nil)
	}
}

// walletState captures what a failed operation must leave untouched.
type walletState struct {
	balances Balances
	coins    []coin.Coin
	pending  int
	next     uint32
	rl       *RLStatus
}

func captureState(w *Wallet) walletState {
	s := walletState{
		balances: w.Balances(),
		coins:    w.Coins(),
		pending:  len(w.Pending()),
	}
	w.mu.Lock()
	s.next = w.meta.NextIndex
	w.mu.Unlock()
	if st, err := w.RateLimitStatus(); err == nil {
		s.rl = &st
	}
	return s
}

func assertUnchanged(t *testing.T, before walletState, w *Wallet) {
	t.Helper()
	after := captureState(w)
	if after.balances != before.balances {
		t.Errorf("balances changed: %+v -> %+v", before.balances, after.balances)
	}
	if len(after.coins) != len(before.coins) {
		t.Errorf("coin count changed: %d -> %d", len(before.coins), len(after.coins))
	}
	for i := range before.coins {
		if i < len(after.coins) && after.coins[i] != before.coins[i] {
			t.Errorf("coin %d changed", i)
		}
	}
	if after.pending != before.pending {
		t.Errorf("pending changed: %d -> %d", before.pending, after.pending)
	}
	if after.next != before.next {
		t.Errorf("key index changed: %d -> %d", before.next, after.next)
	}
	if (before.rl == nil) != (after.rl == nil) {
		t.Fatalf("rate-limited status presence changed")
	}
	if before.rl != nil {
		b, a := *before.rl, *after.rl
		if b.Checkpoint != a.Checkpoint || b.Available != a.Available || b.Pending != a.Pending {
			t.Errorf("rate-limited state changed: %+v -> %+v", b, a)
		}
		if (b.Coin == nil) != (a.Coin == nil) || (b.Coin != nil && *b.Coin != *a.Coin) {
			t.Errorf("rate-limited coin changed")
		}
	}
}
