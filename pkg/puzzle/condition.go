package puzzle

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Op identifies a condition emitted by a program.
type Op uint8

const (
	OpAggSig             Op = 0x32 // Signature by PubKey over Message required
	OpCreateCoin         Op = 0x33 // Create a child coin
	OpAssertCoinConsumed Op = 0x34 // CoinID must be spent in the same bundle
	OpAssertMyParentID   Op = 0x35 // Spent coin's parent must be CoinID
	OpAssertCoinAge      Op = 0x36 // Spent coin must be at least Blocks old
)

// String returns a human-readable name for the op.
func (op Op) String() string {
	switch op {
	case OpAggSig:
		return "AGG_SIG"
	case OpCreateCoin:
		return "CREATE_COIN"
	case OpAssertCoinConsumed:
		return "ASSERT_COIN_CONSUMED"
	case OpAssertMyParentID:
		return "ASSERT_MY_PARENT_ID"
	case OpAssertCoinAge:
		return "ASSERT_COIN_AGE"
	default:
		return fmt.Sprintf("OP(0x%02x)", uint8(op))
	}
}

// Condition is one output of program evaluation. Only the fields relevant
// to Op are set.
type Condition struct {
	Op         Op             `json:"op"`
	PuzzleHash types.Hash     `json:"puzzle_hash"`
	Amount     uint64         `json:"amount,omitempty"`
	PubKey     types.HexBytes `json:"pubkey,omitempty"`
	Message    types.Hash     `json:"message"`
	CoinID     types.Hash     `json:"coin_id"`
	Blocks     uint64         `json:"blocks,omitempty"`
}

// CreateCoin returns a CREATE_COIN condition.
func CreateCoin(puzzleHash types.Hash, amount uint64) Condition {
	return Condition{Op: OpCreateCoin, PuzzleHash: puzzleHash, Amount: amount}
}

// AggSig returns an AGG_SIG condition.
func AggSig(pubKey []byte, msg types.Hash) Condition {
	return Condition{Op: OpAggSig, PubKey: append(types.HexBytes(nil), pubKey...), Message: msg}
}

// AssertCoinConsumed returns an ASSERT_COIN_CONSUMED condition.
func AssertCoinConsumed(id types.Hash) Condition {
	return Condition{Op: OpAssertCoinConsumed, CoinID: id}
}

// AssertMyParentID returns an ASSERT_MY_PARENT_ID condition.
func AssertMyParentID(id types.Hash) Condition {
	return Condition{Op: OpAssertMyParentID, CoinID: id}
}

// AssertCoinAge returns an ASSERT_COIN_AGE condition.
func AssertCoinAge(blocks uint64) Condition {
	return Condition{Op: OpAssertCoinAge, Blocks: blocks}
}

// Bytes returns the canonical serialization of the op and its fields.
func (c Condition) Bytes() []byte {
	buf := []byte{byte(c.Op)}
	switch c.Op {
	case OpCreateCoin:
		buf = append(buf, c.PuzzleHash[:]...)
		buf = binary.BigEndian.AppendUint64(buf, c.Amount)
	case OpAggSig:
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.PubKey)))
		buf = append(buf, c.PubKey...)
		buf = append(buf, c.Message[:]...)
	case OpAssertCoinConsumed, OpAssertMyParentID:
		buf = append(buf, c.CoinID[:]...)
	case OpAssertCoinAge:
		buf = binary.BigEndian.AppendUint64(buf, c.Blocks)
	}
	return buf
}

// ConditionsHash commits to an ordered condition list.
func ConditionsHash(conds []Condition) types.Hash {
	buf := binary.BigEndian.AppendUint32(nil, uint32(len(conds)))
	for _, c := range conds {
		buf = append(buf, c.Bytes()...)
	}
	return crypto.Hash(buf)
}
