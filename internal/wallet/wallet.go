// Package wallet implements a deterministic coin wallet with an optional
// rate-limited coin. A Wallet tracks the coins it owns from ledger block
// deltas, builds signed spend bundles, and persists its state through a
// walletstore.
package wallet

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/log"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/storage"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/walletstore"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Config holds wallet construction parameters.
type Config struct {
	Name string
	Seed []byte

	// Engine builds and evaluates puzzles. Defaults to puzzle.NewEngine().
	Engine puzzle.Engine

	// Store holds wallet state. Defaults to an in-memory database that the
	// wallet closes itself; a caller-supplied store is left open.
	Store storage.DB

	// PendingExpiry drops a reservation once this many blocks were synced
	// without the reserved coin being spent. Zero keeps reservations until
	// they are confirmed or released.
	PendingExpiry uint64

	// AutoConsolidate makes ApplyBlock return a consolidation bundle when
	// deposits to the rate-limited coin are waiting.
	AutoConsolidate bool

	Logger *zerolog.Logger
}

// Balances summarizes a wallet's coins.
type Balances struct {
	Total       uint64 // every tracked coin
	Standard    uint64 // coins at the wallet's own puzzle hashes
	Spendable   uint64 // standard coins not held by a pending bundle
	RateLimited uint64 // current rate-limited coin
	Deposits    uint64 // aggregation coins waiting to be absorbed
	Available   uint64 // withdrawable from the rate-limited coin now
}

// Wallet is a single wallet instance. All methods are safe for concurrent
// use; state is guarded by one mutex so coin selection and reservation are
// atomic with respect to other spends and to sync.
type Wallet struct {
	mu sync.Mutex

	name            string
	engine          puzzle.Engine
	db              storage.DB
	ownsDB          bool
	store           *walletstore.Store
	keys            *Keychain
	sign            bundle.SignFunc
	logger          zerolog.Logger
	pendingExpiry   uint64
	autoConsolidate bool

	puzzles map[types.Hash]uint32 // standard puzzle hash -> key index
	meta    walletstore.Meta
	tracker *Tracker
	rl      *rateLimited
}

// New opens a wallet, restoring any state found in cfg.Store.
func New(cfg Config) (*Wallet, error) {
	if err := ValidateName(cfg.Name); err != nil {
		return nil, err
	}
	keys, err := NewKeychain(cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("wallet %q: %w", cfg.Name, err)
	}

	w := &Wallet{
		name:            cfg.Name,
		engine:          cfg.Engine,
		db:              cfg.Store,
		keys:            keys,
		pendingExpiry:   cfg.PendingExpiry,
		autoConsolidate: cfg.AutoConsolidate,
		puzzles:         make(map[types.Hash]uint32),
	}
	w.sign = keys.SignFor
	if w.engine == nil {
		w.engine = puzzle.NewEngine()
	}
	if w.db == nil {
		w.db = storage.NewMemory()
		w.ownsDB = true
	}
	if cfg.Logger != nil {
		w.logger = *cfg.Logger
	} else {
		w.logger = log.WithWallet(log.Wallet, cfg.Name)
	}
	w.store = walletstore.New(w.db)
	w.tracker = NewTracker(w.owns)

	if err := w.restore(); err != nil {
		w.Close()
		return nil, fmt.Errorf("wallet %q: %w", cfg.Name, err)
	}
	return w, nil
}

func (w *Wallet) restore() error {
	snap, err := w.store.Load()
	if err != nil {
		return err
	}
	w.meta = snap.Meta

	for i := uint32(0); i < w.meta.NextIndex; i++ {
		if _, err := w.registerKey(i); err != nil {
			return err
		}
	}
	if w.meta.OwnerIndex != nil {
		if _, err := w.keys.Derive(*w.meta.OwnerIndex); err != nil {
			return err
		}
	}
	if w.meta.RL != nil {
		rl, err := w.loadRateLimited(w.meta.RL.Descriptor)
		if err != nil {
			return fmt.Errorf("restore rate-limited state: %w", err)
		}
		w.rl = rl
	}

	w.tracker.restore(snap.Coins, snap.Reservations)
	w.logger.Debug().
		Int("coins", w.tracker.Len()).
		Int("pending", len(snap.Reservations)).
		Uint64("height", w.meta.Height).
		Bool("rate_limited", w.rl != nil).
		Msg("Wallet loaded")
	return nil
}

// registerKey derives the key at index and records its puzzle hash.
func (w *Wallet) registerKey(index uint32) (types.Hash, error) {
	ph, err := w.puzzleHashAt(index)
	if err != nil {
		return types.Hash{}, err
	}
	w.puzzles[ph] = index
	return ph, nil
}

func (w *Wallet) puzzleHashAt(index uint32) (types.Hash, error) {
	pub, err := w.keys.Derive(index)
	if err != nil {
		return types.Hash{}, fmt.Errorf("derive key %d: %w", index, err)
	}
	return w.engine.Hash(w.engine.Standard(pub)), nil
}

// owns reports whether a puzzle hash belongs to this wallet.
func (w *Wallet) owns(ph types.Hash) bool {
	if _, ok := w.puzzles[ph]; ok {
		return true
	}
	return w.rl != nil && (ph == w.rl.puzzleHash || ph == w.rl.aggHash)
}

func (w *Wallet) isStandard(c coin.Coin) bool {
	_, ok := w.puzzles[c.PuzzleHash]
	return ok
}

// Name returns the wallet name.
func (w *Wallet) Name() string {
	return w.name
}

// Engine returns the puzzle engine the wallet builds spends with.
func (w *Wallet) Engine() puzzle.Engine {
	return w.engine
}

// NewPuzzleHash derives the next key and returns its standard puzzle hash.
func (w *Wallet) NewPuzzleHash() (types.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	index := w.meta.NextIndex
	ph, err := w.puzzleHashAt(index)
	if err != nil {
		return types.Hash{}, err
	}
	meta := cloneMeta(w.meta)
	meta.NextIndex++
	upd := w.store.NewUpdate()
	upd.PutMeta(meta)
	if err := upd.Commit(); err != nil {
		return types.Hash{}, err
	}
	w.meta = meta
	w.puzzles[ph] = index
	return ph, nil
}

// Balances returns the wallet's balance summary.
func (w *Wallet) Balances() Balances {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := Balances{Total: w.tracker.Balance()}
	for _, c := range w.tracker.Coins() {
		if w.isStandard(c) {
			b.Standard += c.Amount
			if !w.tracker.IsReserved(c.ID()) {
				b.Spendable += c.Amount
			}
		}
	}
	if w.rl != nil {
		if c := w.meta.RL.Coin; c != nil {
			b.RateLimited = c.Amount
		}
		for _, d := range w.depositCoins(true) {
			b.Deposits += d.Amount
		}
		b.Available = w.availableLocked()
	}
	return b
}

// Balance returns the total of every tracked coin.
func (w *Wallet) Balance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tracker.Balance()
}

// Coins returns every tracked coin ordered by amount then id.
func (w *Wallet) Coins() []coin.Coin {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tracker.Coins()
}

// Pending returns the outstanding reservations.
func (w *Wallet) Pending() []walletstore.Reservation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tracker.Reservations()
}

// Height returns the last synced height and whether any block was synced.
func (w *Wallet) Height() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.meta.Height, w.meta.Synced
}

// Header returns the header hash of the last synced block.
func (w *Wallet) Header() (types.Hash, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.meta.Header, w.meta.Synced
}

// Close wipes key material and closes a wallet-owned store.
func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys.Zero()
	if w.ownsDB {
		return w.db.Close()
	}
	return nil
}

func cloneMeta(m walletstore.Meta) walletstore.Meta {
	out := m
	if m.OwnerIndex != nil {
		idx := *m.OwnerIndex
		out.OwnerIndex = &idx
	}
	if m.RL != nil {
		rl := *m.RL
		if rl.Coin != nil {
			c := *rl.Coin
			rl.Coin = &c
		}
		if rl.Lineage != nil {
			l := *rl.Lineage
			rl.Lineage = &l
		}
		out.RL = &rl
	}
	return out
}
