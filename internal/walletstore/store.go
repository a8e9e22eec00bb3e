// Package walletstore persists a wallet's coin set, pending reservations
// and metadata on a storage.DB.
package walletstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/storage"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// Key layout.
var (
	prefixCoin    = []byte("c/") // c/<coin id> -> CoinRecord JSON
	prefixPending = []byte("p/") // p/<coin id> -> Reservation JSON
	keyMeta       = []byte("m/meta")
)

// metaVersion is the current Meta format.
const metaVersion = 1

// CoinRecord is a confirmed coin and the height it was confirmed at.
type CoinRecord struct {
	Coin   coin.Coin `json:"coin"`
	Height uint64    `json:"height"`
}

// Reservation marks a coin as consumed by a locally built bundle that the
// ledger has not confirmed yet.
type Reservation struct {
	CoinID types.Hash `json:"coin_id"`
	Bundle types.Hash `json:"bundle"`
	Height uint64     `json:"height"`
}

// RLState is the persisted rate-limit record of a wallet.
type RLState struct {
	Descriptor string          `json:"descriptor"`
	Checkpoint uint64          `json:"checkpoint"`
	Coin       *coin.Coin      `json:"coin,omitempty"`
	Lineage    *puzzle.Lineage `json:"lineage,omitempty"`
}

// Meta is the wallet's scalar state.
type Meta struct {
	Version    int        `json:"version"`
	NextIndex  uint32     `json:"next_index"`
	OwnerIndex *uint32    `json:"owner_index,omitempty"`
	Synced     bool       `json:"synced"`
	Height     uint64     `json:"height"`
	Header     types.Hash `json:"header"`
	RL         *RLState   `json:"rl,omitempty"`
}

// Snapshot is everything a wallet needs to resume.
type Snapshot struct {
	Meta         Meta
	Coins        []CoinRecord
	Reservations []Reservation
}

// Store reads and writes wallet state.
type Store struct {
	db storage.DB
}

// New creates a store backed by db.
func New(db storage.DB) *Store {
	return &Store{db: db}
}

func idKey(prefix []byte, id types.Hash) []byte {
	key := make([]byte, len(prefix)+types.HashSize)
	copy(key, prefix)
	copy(key[len(prefix):], id[:])
	return key
}

// Load reads the full wallet state. A store that was never written
// returns an empty snapshot with the current version.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{Meta: Meta{Version: metaVersion}}

	data, err := s.db.Get(keyMeta)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("meta get: %w", err)
	default:
		if err := json.Unmarshal(data, &snap.Meta); err != nil {
			return nil, fmt.Errorf("meta unmarshal: %w", err)
		}
		if snap.Meta.Version != metaVersion {
			return nil, fmt.Errorf("unsupported wallet store version: %d", snap.Meta.Version)
		}
	}

	err = s.ForEachCoin(func(rec *CoinRecord) error {
		snap.Coins = append(snap.Coins, *rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.ForEach(prefixPending, func(_, value []byte) error {
		var r Reservation
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("reservation unmarshal: %w", err)
		}
		snap.Reservations = append(snap.Reservations, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// GetCoin retrieves a coin record by coin id.
func (s *Store) GetCoin(id types.Hash) (*CoinRecord, error) {
	data, err := s.db.Get(idKey(prefixCoin, id))
	if err != nil {
		return nil, fmt.Errorf("coin get: %w", err)
	}
	var rec CoinRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("coin unmarshal: %w", err)
	}
	return &rec, nil
}

// HasCoin checks if a coin is stored.
func (s *Store) HasCoin(id types.Hash) (bool, error) {
	return s.db.Has(idKey(prefixCoin, id))
}

// ForEachCoin iterates over all stored coins.
func (s *Store) ForEachCoin(fn func(*CoinRecord) error) error {
	return s.db.ForEach(prefixCoin, func(_, value []byte) error {
		var rec CoinRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("coin unmarshal: %w", err)
		}
		return fn(&rec)
	})
}

// NewUpdate starts a set of writes that are committed together.
func (s *Store) NewUpdate() *Update {
	return &Update{batch: storage.NewBatch(s.db)}
}

// Update collects writes for one atomic commit. The first encoding error
// is reported by Commit.
type Update struct {
	batch storage.Batch
	err   error
	n     int
}

func (u *Update) put(key []byte, v any) {
	if u.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		u.err = fmt.Errorf("marshal %s: %w", key[:2], err)
		return
	}
	u.err = u.batch.Put(key, data)
	u.n++
}

func (u *Update) del(key []byte) {
	if u.err != nil {
		return
	}
	u.err = u.batch.Delete(key)
	u.n++
}

// PutCoin stores a coin record.
func (u *Update) PutCoin(rec CoinRecord) { u.put(idKey(prefixCoin, rec.Coin.ID()), rec) }

// DeleteCoin removes a coin record.
func (u *Update) DeleteCoin(id types.Hash) { u.del(idKey(prefixCoin, id)) }

// PutReservation stores a reservation.
func (u *Update) PutReservation(r Reservation) { u.put(idKey(prefixPending, r.CoinID), r) }

// DeleteReservation removes the reservation on a coin.
func (u *Update) DeleteReservation(id types.Hash) { u.del(idKey(prefixPending, id)) }

// PutMeta replaces the wallet metadata.
func (u *Update) PutMeta(m Meta) {
	m.Version = metaVersion
	u.put(keyMeta, m)
}

// Len returns the number of queued writes.
func (u *Update) Len() int { return u.n }

// Commit applies the queued writes.
func (u *Update) Commit() error {
	if u.err != nil {
		return u.err
	}
	if u.n == 0 {
		return nil
	}
	if err := u.batch.Commit(); err != nil {
		return fmt.Errorf("wallet store commit: %w", err)
	}
	return nil
}
