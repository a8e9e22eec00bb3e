// Package ledger defines what the wallet needs from a ledger and feeds
// ledger blocks into a wallet.
package ledger

import (
	"context"
	"errors"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Ledger errors.
var (
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrUnknownHeader      = errors.New("unknown block header")
	ErrUnknownCoin        = errors.New("unknown coin")
)

// Block is the coin-set effect of one ledger block.
type Block struct {
	Height     uint64       `json:"height"`
	Header     types.Hash   `json:"header"`
	PrevHeader types.Hash   `json:"prev_header"`
	Additions  []coin.Coin  `json:"additions"`
	Removals   []types.Hash `json:"removals"`
}

// DiffSource returns ledger blocks.
type DiffSource interface {
	// BlockRange returns the blocks after the block with header from, in
	// height order. A nil from returns the full history.
	BlockRange(ctx context.Context, from *types.Hash) ([]Block, error)
}

// Resolver returns the coin behind a coin id. It knows spent coins too.
type Resolver interface {
	Resolve(ctx context.Context, id types.Hash) (coin.Coin, error)
}

// Sink accepts spend bundles. A bundle the ledger refuses yields a
// *RejectedError.
type Sink interface {
	Push(ctx context.Context, b *bundle.SpendBundle) error
}

// Ledger is a complete ledger collaborator.
type Ledger interface {
	DiffSource
	Resolver
	Sink
}

// RejectedError reports why the ledger refused a bundle.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "rejected: " + e.Reason
}

// Is makes errors.Is(err, ErrSubmissionRejected) hold for rejections.
func (e *RejectedError) Is(target error) bool {
	return target == ErrSubmissionRejected
}
