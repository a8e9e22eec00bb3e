// Package ledgertest provides an in-memory ledger for tests: it farms
// blocks, keeps a mempool of validated bundles and serves the ledger
// contracts directly or over JSON-RPC.
package ledgertest

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// DefaultReward is the coinbase amount of every farmed block.
const DefaultReward = 1_000_000_000

type entry struct {
	coin   coin.Coin
	height uint64
	spent  bool
}

// Ledger is an in-memory ledger. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	engine  puzzle.Engine
	reward  uint64
	blocks  []ledger.Block
	byHdr   map[types.Hash]int
	coins   map[types.Hash]*entry
	mempool []*bundle.SpendBundle
}

var _ ledger.Ledger = (*Ledger)(nil)

// New creates an empty ledger evaluating spends with the reference engine.
func New() *Ledger {
	return &Ledger{
		engine: puzzle.NewEngine(),
		reward: DefaultReward,
		byHdr:  make(map[types.Hash]int),
		coins:  make(map[types.Hash]*entry),
	}
}

// Engine returns the engine bundles are validated with.
func (l *Ledger) Engine() puzzle.Engine {
	return l.engine
}

// Tip returns the height and header of the last block.
func (l *Ledger) Tip() (height uint64, header types.Hash, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocks) == 0 {
		return 0, types.Hash{}, false
	}
	tip := l.blocks[len(l.blocks)-1]
	return tip.Height, tip.Header, true
}

func (l *Ledger) nextHeight() uint64 {
	return uint64(len(l.blocks))
}

// view adapts the unspent coin set to bundle.CoinView.
type view struct {
	l     *Ledger
	taken map[types.Hash]bool // spent by earlier bundles in the same block or mempool
}

func (v view) GetCoin(id types.Hash) (coin.Coin, uint64, error) {
	e, ok := v.l.coins[id]
	if !ok || e.spent || v.taken[id] {
		return coin.Coin{}, 0, fmt.Errorf("coin %s: %w", id, ledger.ErrUnknownCoin)
	}
	return e.coin, e.height, nil
}

func (v view) HasCoin(id types.Hash) bool {
	e, ok := v.l.coins[id]
	return ok && !e.spent && !v.taken[id]
}

// FarmBlock mines a block including every mempool bundle that is still
// valid. The block pays the reward and the collected fees to coinbase as
// two separate coins.
func (l *Ledger) FarmBlock(coinbase types.Hash) ledger.Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := l.nextHeight()
	b := ledger.Block{Height: h, Header: blockHeader(h, l.mempool)}
	if h > 0 {
		b.PrevHeader = l.blocks[h-1].Header
	}

	v := view{l: l, taken: make(map[types.Hash]bool)}
	var fees uint64
	for _, sb := range l.mempool {
		res, err := sb.ValidateWithView(l.engine, v, h)
		if err != nil {
			continue
		}
		for _, id := range sb.CoinIDs() {
			v.taken[id] = true
			b.Removals = append(b.Removals, id)
		}
		b.Additions = append(b.Additions, res.Additions...)
		fees += res.Fee
	}
	l.mempool = nil

	b.Additions = append(b.Additions, coin.Coin{
		ParentCoinInfo: derivedParent("coinbase", h),
		PuzzleHash:     coinbase,
		Amount:         l.reward,
	})
	if fees > 0 {
		b.Additions = append(b.Additions, coin.Coin{
			ParentCoinInfo: derivedParent("fees", h),
			PuzzleHash:     coinbase,
			Amount:         fees,
		})
	}

	for _, id := range b.Removals {
		l.coins[id].spent = true
	}
	for _, c := range b.Additions {
		l.coins[c.ID()] = &entry{coin: c, height: h}
	}
	l.byHdr[b.Header] = len(l.blocks)
	l.blocks = append(l.blocks, b)
	return b
}

// FarmBlocks farms n blocks paying coinbase.
func (l *Ledger) FarmBlocks(n int, coinbase types.Hash) {
	for i := 0; i < n; i++ {
		l.FarmBlock(coinbase)
	}
}

// BlockRange returns the blocks after from, or all blocks for nil.
func (l *Ledger) BlockRange(_ context.Context, from *types.Hash) ([]ledger.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := 0
	if from != nil {
		i, ok := l.byHdr[*from]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownHeader, *from)
		}
		start = i + 1
	}
	return append([]ledger.Block(nil), l.blocks[start:]...), nil
}

// Resolve returns any coin the ledger ever created.
func (l *Ledger) Resolve(_ context.Context, id types.Hash) (coin.Coin, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.coins[id]
	if !ok {
		return coin.Coin{}, fmt.Errorf("%w: %s", ledger.ErrUnknownCoin, id)
	}
	return e.coin, nil
}

// Push validates b as if it were included in the next block and adds it
// to the mempool. Bundles conflicting with the mempool are rejected.
func (l *Ledger) Push(_ context.Context, b *bundle.SpendBundle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := view{l: l, taken: make(map[types.Hash]bool)}
	for _, p := range l.mempool {
		for _, id := range p.CoinIDs() {
			v.taken[id] = true
		}
	}
	if _, err := b.ValidateWithView(l.engine, v, l.nextHeight()); err != nil {
		return &ledger.RejectedError{Reason: err.Error()}
	}
	l.mempool = append(l.mempool, b)
	return nil
}

// MempoolSize returns the number of bundles waiting for a block.
func (l *Ledger) MempoolSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.mempool)
}

func derivedParent(tag string, height uint64) types.Hash {
	buf := binary.BigEndian.AppendUint64([]byte(tag), height)
	return crypto.Hash(buf)
}

func blockHeader(height uint64, bundles []*bundle.SpendBundle) types.Hash {
	buf := binary.BigEndian.AppendUint64([]byte("block"), height)
	for _, b := range bundles {
		name := b.Name()
		buf = append(buf, name[:]...)
	}
	return crypto.Hash(buf)
}
