package rpcclient

import (
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32001
)

// Ledger methods.
const (
	MethodGetTip        = "ledger_getTip"
	MethodGetBlockRange = "ledger_getBlockRange"
	MethodHashPreimage  = "ledger_hashPreimage"
	MethodPushTx        = "ledger_pushTx"
)

// TipResult is returned by ledger_getTip. Empty is set before the first
// block.
type TipResult struct {
	Height uint64     `json:"height"`
	Header types.Hash `json:"header"`
	Empty  bool       `json:"empty,omitempty"`
}

// BlockRangeParam is used by ledger_getBlockRange. A missing from returns
// the full history.
type BlockRangeParam struct {
	From *types.Hash `json:"from,omitempty"`
}

// HashParam is used by ledger_hashPreimage.
type HashParam struct {
	Hash types.Hash `json:"hash"`
}

// PushTxParam is used by ledger_pushTx.
type PushTxParam struct {
	Bundle *bundle.SpendBundle `json:"bundle"`
}

// PushTxResult is returned by ledger_pushTx.
type PushTxResult struct {
	Name types.Hash `json:"name"`
}
