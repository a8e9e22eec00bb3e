package puzzle

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Lineage proves a rate-limited coin descends from another coin with the
// same puzzle hash. It names the parent's own parent and amount.
type Lineage struct {
	ParentCoinInfo types.Hash `json:"parent_coin_info"`
	Amount         uint64     `json:"amount"`
}

// Solution carries the arguments a program is evaluated with.
// Which fields apply depends on the program kind:
//   - Standard: Conditions.
//   - RateLimited: Amount, Destination, CoinAge, Lineage, Deposits.
//   - Aggregation: RLCoin.
type Solution struct {
	Conditions  []Condition `json:"conditions,omitempty"`
	Amount      uint64      `json:"amount,omitempty"`
	Destination types.Hash  `json:"destination"`
	CoinAge     uint64      `json:"coin_age,omitempty"`
	Lineage     *Lineage    `json:"lineage,omitempty"`
	Deposits    []coin.Coin `json:"deposits,omitempty"`
	RLCoin      *coin.Coin  `json:"rl_coin,omitempty"`
}

// Bytes returns the canonical serialization used for hashing.
func (s Solution) Bytes() []byte {
	var buf []byte
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.Conditions)))
	for _, c := range s.Conditions {
		b := c.Bytes()
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
		buf = append(buf, b...)
	}
	buf = binary.BigEndian.AppendUint64(buf, s.Amount)
	buf = append(buf, s.Destination[:]...)
	buf = binary.BigEndian.AppendUint64(buf, s.CoinAge)
	if s.Lineage != nil {
		buf = append(buf, 1)
		buf = append(buf, s.Lineage.ParentCoinInfo[:]...)
		buf = binary.BigEndian.AppendUint64(buf, s.Lineage.Amount)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.Deposits)))
	for _, d := range s.Deposits {
		buf = append(buf, d.Bytes()...)
	}
	if s.RLCoin != nil {
		buf = append(buf, 1)
		buf = append(buf, s.RLCoin.Bytes()...)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// Hash commits to the whole solution.
func (s Solution) Hash() types.Hash {
	return crypto.Hash(s.Bytes())
}
