// Package storage provides the key-value stores wallets persist to.
package storage

import (
	"bytes"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach visits every key with prefix in ascending key order. fn
	// gets copies it may keep. A non-nil error from fn stops iteration
	// and is returned.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch buffers writes and applies them in one Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by databases that can commit a batch atomically.
type Batcher interface {
	NewBatch() Batch
}

// NewBatch returns an atomic batch when db supports one and a buffered,
// non-atomic batch otherwise.
func NewBatch(db DB) Batch {
	if b, ok := db.(Batcher); ok {
		return b.NewBatch()
	}
	return &fallbackBatch{db: db}
}

type batchOp struct {
	key   []byte
	value []byte // nil means delete
}

func putOp(key, value []byte) batchOp {
	v := make([]byte, len(value))
	copy(v, value)
	return batchOp{key: bytes.Clone(key), value: v}
}

func deleteOp(key []byte) batchOp {
	return batchOp{key: bytes.Clone(key)}
}

func (op batchOp) apply(put func(k, v []byte) error, del func(k []byte) error) error {
	if op.value == nil {
		return del(op.key)
	}
	return put(op.key, op.value)
}

// fallbackBatch buffers writes and applies them one by one on Commit.
// A failure part way leaves the earlier writes in place.
type fallbackBatch struct {
	db  DB
	ops []batchOp
}

func (fb *fallbackBatch) Put(key, value []byte) error {
	fb.ops = append(fb.ops, putOp(key, value))
	return nil
}

func (fb *fallbackBatch) Delete(key []byte) error {
	fb.ops = append(fb.ops, deleteOp(key))
	return nil
}

func (fb *fallbackBatch) Commit() error {
	for i, op := range fb.ops {
		if err := op.apply(fb.db.Put, fb.db.Delete); err != nil {
			fb.ops = fb.ops[i:]
			return err
		}
	}
	fb.ops = nil
	return nil
}
