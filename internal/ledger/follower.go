package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/log"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// DefaultResolveLimit bounds concurrent preimage lookups per block.
const DefaultResolveLimit = 8

// Follower keeps a wallet in step with a ledger and submits its bundles.
type Follower struct {
	wallet       *wallet.Wallet
	ledger       Ledger
	logger       zerolog.Logger
	resolveLimit int
}

// NewFollower creates a follower for w on l.
func NewFollower(w *wallet.Wallet, l Ledger) *Follower {
	return &Follower{
		wallet:       w,
		ledger:       l,
		logger:       log.WithWallet(log.Sync, w.Name()),
		resolveLimit: DefaultResolveLimit,
	}
}

// SetResolveLimit changes the number of concurrent preimage lookups.
func (f *Follower) SetResolveLimit(n int) {
	if n > 0 {
		f.resolveLimit = n
	}
}

// Sync fetches every block after the wallet's last synced block and
// applies them in height order. Follow-up bundles the wallet builds are
// submitted; a rejected follow-up is released and logged. It returns the
// number of blocks applied.
func (f *Follower) Sync(ctx context.Context) (int, error) {
	defer log.Timed(f.logger, "sync")()

	var from *types.Hash
	if header, synced := f.wallet.Header(); synced {
		from = &header
	}
	blocks, err := f.ledger.BlockRange(ctx, from)
	if err != nil {
		return 0, fmt.Errorf("fetch blocks: %w", err)
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Height < blocks[j].Height })

	applied := 0
	for _, b := range blocks {
		removals, err := f.resolve(ctx, b.Removals)
		if err != nil {
			return applied, fmt.Errorf("block %d: %w", b.Height, err)
		}
		followUps, err := f.wallet.ApplyBlock(wallet.BlockDelta{
			Height:     b.Height,
			Header:     b.Header,
			PrevHeader: b.PrevHeader,
			Additions:  b.Additions,
			Removals:   removals,
		})
		if err != nil {
			return applied, err
		}
		applied++

		for _, fu := range followUps {
			if err := f.Submit(ctx, fu); err != nil {
				f.logger.Warn().Err(err).Str("bundle", fu.Name().String()).Msg("Follow-up bundle not submitted")
			}
		}
	}

	if applied > 0 {
		height, _ := f.wallet.Height()
		f.logger.Info().Int("blocks", applied).Uint64("height", height).Msg("Wallet synced")
	}
	return applied, nil
}

// resolve looks up removal preimages concurrently, keeping their order.
func (f *Follower) resolve(ctx context.Context, ids []types.Hash) ([]coin.Coin, error) {
	out := make([]coin.Coin, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.resolveLimit)
	for i, id := range ids {
		g.Go(func() error {
			c, err := f.ledger.Resolve(gctx, id)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", id, err)
			}
			if c.ID() != id {
				return fmt.Errorf("resolve %s: preimage hashes to %s", id, c.ID())
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Submit pushes b to the ledger. When the ledger rejects it the bundle's
// reservations are released and the error wraps ErrSubmissionRejected.
// Transport errors leave the reservation in place. Nothing is retried.
func (f *Follower) Submit(ctx context.Context, b *bundle.SpendBundle) error {
	err := f.ledger.Push(ctx, b)
	if err == nil {
		f.logger.Info().Str("bundle", b.Name().String()).Int("spends", len(b.Spends)).Msg("Bundle submitted")
		return nil
	}

	var rej *RejectedError
	if !errors.As(err, &rej) {
		return fmt.Errorf("push bundle %s: %w", b.Name(), err)
	}
	if relErr := f.wallet.Release(b); relErr != nil && !errors.Is(relErr, wallet.ErrUnknownBundle) {
		f.logger.Error().Err(relErr).Msg("Failed to release rejected bundle")
	}
	f.logger.Warn().Str("bundle", b.Name().String()).Str("reason", rej.Reason).Msg("Bundle rejected")
	return fmt.Errorf("%w: %s", ErrSubmissionRejected, rej.Reason)
}

// Run syncs every interval until ctx is done. Sync errors are logged and
// retried on the next tick.
func (f *Follower) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := f.Sync(ctx); err != nil && ctx.Err() == nil {
			f.logger.Error().Err(err).Msg("Sync failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
