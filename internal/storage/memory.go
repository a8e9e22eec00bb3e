package storage

import (
	"bytes"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryDB is an in-memory DB for tests and throwaway wallets. It iterates
// in key order like BadgerDB.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *MemoryDB {
	return &MemoryDB{data: make(map[string][]byte)}
}

func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(putOp(key, value))
	return nil
}

func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach works on a snapshot taken under the read lock, so fn may write
// to the database.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	m.mu.RLock()
	var snapshot []batchOp
	for _, k := range slices.Sorted(maps.Keys(m.data)) {
		if strings.HasPrefix(k, p) {
			snapshot = append(snapshot, batchOp{key: []byte(k), value: bytes.Clone(m.data[k])})
		}
	}
	m.mu.RUnlock()

	for _, kv := range snapshot {
		if err := fn(kv.key, kv.value); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDB) Close() error {
	return nil
}

// set applies op. The caller holds the write lock.
func (m *MemoryDB) set(op batchOp) {
	if op.value == nil {
		delete(m.data, string(op.key))
		return
	}
	m.data[string(op.key)] = op.value
}

// NewBatch returns a batch applied under a single lock.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

type memoryBatch struct {
	db  *MemoryDB
	ops []batchOp
}

func (mb *memoryBatch) Put(key, value []byte) error {
	mb.ops = append(mb.ops, putOp(key, value))
	return nil
}

func (mb *memoryBatch) Delete(key []byte) error {
	mb.ops = append(mb.ops, deleteOp(key))
	return nil
}

func (mb *memoryBatch) Commit() error {
	mb.db.mu.Lock()
	defer mb.db.mu.Unlock()
	for _, op := range mb.ops {
		mb.db.set(op)
	}
	mb.ops = nil
	return nil
}
