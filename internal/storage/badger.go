package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// ErrInUse is returned by NewBadger when another process holds the
// database directory lock.
var ErrInUse = errors.New("database in use by another process")

// Wallet state is small: keep memtables and value log files modest so a
// fresh data directory does not preallocate hundreds of megabytes.
const (
	walletMemTableSize = 8 << 20
	walletValueLogSize = 16 << 20
)

// BadgerDB is a DB backed by Badger. All keys of a batch are written in one
// transaction.
type BadgerDB struct {
	db *badger.DB
}

// NewBadger opens or creates the database at path.
func NewBadger(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithMemTableSize(walletMemTableSize).
		WithValueLogFileSize(walletValueLogSize)

	db, err := badger.Open(opts)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Cannot acquire directory lock") ||
			strings.Contains(msg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("%w: %s", ErrInUse, path)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &BadgerDB{db: db}, nil
}

func (b *BadgerDB) view(op string, fn func(txn *badger.Txn) error) error {
	if err := b.db.View(fn); err != nil {
		return fmt.Errorf("badger %s: %w", op, err)
	}
	return nil
}

func (b *BadgerDB) update(op string, fn func(txn *badger.Txn) error) error {
	if err := b.db.Update(fn); err != nil {
		return fmt.Errorf("badger %s: %w", op, err)
	}
	return nil
}

// Get returns a copy of the value under key, or ErrNotFound.
func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

func (b *BadgerDB) Put(key, value []byte) error {
	return b.update("put", func(txn *badger.Txn) error { return txn.Set(key, value) })
}

func (b *BadgerDB) Delete(key []byte) error {
	return b.update("delete", func(txn *badger.Txn) error { return txn.Delete(key) })
}

func (b *BadgerDB) Has(key []byte) (bool, error) {
	var exists bool
	err := b.view("has", func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		exists = err == nil
		return err
	})
	return exists, err
}

// ForEach visits keys with prefix in key order. Values are only fetched
// for keys fn is called with.
func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerDB) Close() error {
	return b.db.Close()
}

func (b *BadgerDB) NewBatch() Batch {
	return &badgerBatch{db: b}
}

type badgerBatch struct {
	db  *BadgerDB
	ops []batchOp
}

func (bb *badgerBatch) Put(key, value []byte) error {
	bb.ops = append(bb.ops, putOp(key, value))
	return nil
}

func (bb *badgerBatch) Delete(key []byte) error {
	bb.ops = append(bb.ops, deleteOp(key))
	return nil
}

func (bb *badgerBatch) Commit() error {
	err := bb.db.update("batch commit", func(txn *badger.Txn) error {
		for _, op := range bb.ops {
			if err := op.apply(txn.Set, txn.Delete); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		bb.ops = nil
	}
	return err
}
