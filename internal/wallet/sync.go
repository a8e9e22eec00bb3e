package wallet

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/walletstore"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// BlockDelta is the effect of one ledger block, with removals resolved to
// their coins.
type BlockDelta struct {
	Height     uint64
	Header     types.Hash
	PrevHeader types.Hash
	Additions  []coin.Coin
	Removals   []coin.Coin
}

// ApplyBlock applies one block delta. The first delta may have any height;
// every later one must extend the last synced block, otherwise
// ErrOutOfOrderSync is returned and nothing changes.
//
// It returns follow-up bundles the wallet built in reaction to the block
// (deposit consolidation when AutoConsolidate is set). They are reserved
// like any other spend and should be submitted by the caller.
func (w *Wallet) ApplyBlock(d BlockDelta) ([]*bundle.SpendBundle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.meta.Synced && (d.Height != w.meta.Height+1 || d.PrevHeader != w.meta.Header) {
		return nil, fmt.Errorf("%w: synced to %d (%s), got %d on %s",
			ErrOutOfOrderSync, w.meta.Height, w.meta.Header, d.Height, d.PrevHeader)
	}

	removals := make([]types.Hash, len(d.Removals))
	for i, c := range d.Removals {
		removals[i] = c.ID()
	}

	// Build the next state without touching the current one, persist it,
	// then publish it. A failed write leaves the wallet at the last block.
	diff := w.tracker.diff(d.Height, d.Additions, removals)
	expired := w.tracker.expiredAfter(diff, d.Height, w.pendingExpiry)
	meta := cloneMeta(w.meta)
	meta.Synced = true
	meta.Height = d.Height
	meta.Header = d.Header
	var events []rlEvent
	if w.rl != nil {
		events = w.trackRateLimited(meta.RL, d.Height, diff)
	}

	upd := w.store.NewUpdate()
	for _, rec := range diff.Added {
		upd.PutCoin(rec)
	}
	for _, c := range diff.Removed {
		upd.DeleteCoin(c.ID())
	}
	for _, r := range diff.Confirmed {
		upd.DeleteReservation(r.CoinID)
	}
	for _, r := range expired {
		upd.DeleteReservation(r.CoinID)
	}
	upd.PutMeta(meta)
	if err := upd.Commit(); err != nil {
		w.logger.Error().Err(err).Uint64("height", d.Height).Msg("Failed to persist block")
		return nil, fmt.Errorf("persist block %d: %w", d.Height, err)
	}

	w.tracker.commitDiff(diff)
	w.tracker.releaseAll(expired)
	w.meta = meta

	for _, ev := range events {
		ev.log(w.logger)
	}
	for _, r := range expired {
		w.logger.Warn().
			Str("coin", r.CoinID.String()).
			Str("bundle", r.Bundle.String()).
			Uint64("reserved_at", r.Height).
			Msg("Pending spend expired, coin released")
	}
	if !diff.Empty() {
		w.logger.Debug().
			Uint64("height", d.Height).
			Int("added", len(diff.Added)).
			Int("removed", len(diff.Removed)).
			Int("confirmed", len(diff.Confirmed)).
			Uint64("balance", w.tracker.Balance()).
			Msg("Block applied")
	}

	var followUps []*bundle.SpendBundle
	if w.autoConsolidate && w.rl != nil && w.checkRLCoin() == nil {
		sb, err := w.consolidateLocked()
		if err != nil {
			w.logger.Warn().Err(err).Msg("Deposit consolidation failed")
		} else if sb != nil {
			followUps = append(followUps, sb)
		}
	}
	return followUps, nil
}

// rlEvent is a rate-limited coin transition, logged once the block that
// caused it is persisted.
type rlEvent struct {
	level  zerolog.Level
	msg    string
	coin   coin.Coin
	height uint64
}

func (e rlEvent) log(logger zerolog.Logger) {
	logger.WithLevel(e.level).
		Str("coin", e.coin.ID().String()).
		Str("parent", e.coin.ParentCoinInfo.String()).
		Uint64("amount", e.coin.Amount).
		Uint64("height", e.height).
		Msg(e.msg)
}

// trackRateLimited follows the rate-limited singleton through a block,
// updating st (a copy of the wallet's state) for the state after diff.
// The first coin is a child of the origin; each later coin is a child of
// the current one. Anything else at the rate-limited puzzle hash is a
// stray: it counts toward the balance but is never spent.
func (w *Wallet) trackRateLimited(st *walletstore.RLState, height uint64, diff Diff) []rlEvent {
	var events []rlEvent
	ev := func(level zerolog.Level, msg string, c coin.Coin) {
		events = append(events, rlEvent{level: level, msg: msg, coin: c, height: height})
	}
	for _, rec := range diff.Added {
		c := rec.Coin
		switch c.PuzzleHash {
		case w.rl.aggHash:
			ev(zerolog.InfoLevel, "Deposit received", c)
			continue
		case w.rl.puzzleHash:
		default:
			continue
		}

		switch {
		case st.Coin == nil && st.Lineage == nil && c.ParentCoinInfo == w.rl.desc.OriginID():
			st.Coin = &c
			st.Checkpoint = height
			ev(zerolog.InfoLevel, "Rate-limited coin arrived", c)
		case st.Coin != nil && c.ParentCoinInfo == st.Coin.ID():
			st.Lineage = &puzzle.Lineage{ParentCoinInfo: st.Coin.ParentCoinInfo, Amount: st.Coin.Amount}
			st.Coin = &c
			st.Checkpoint = height
			ev(zerolog.InfoLevel, "Rate-limited coin spent, successor tracked", c)
		default:
			ev(zerolog.WarnLevel, "Stray coin at rate-limited puzzle hash ignored", c)
		}
	}

	if st.Coin != nil && !w.tracker.hasAfter(diff, st.Coin.ID()) {
		ev(zerolog.ErrorLevel, "Rate-limited coin removed without a successor", *st.Coin)
		st.Lineage = &puzzle.Lineage{ParentCoinInfo: st.Coin.ParentCoinInfo, Amount: st.Coin.Amount}
		st.Coin = nil
	}
	return events
}
