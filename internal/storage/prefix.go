package storage

import "bytes"

// PrefixDB is a namespace inside another DB. Keys are stored under a fixed
// prefix that callers never see, so several wallets can share one Badger
// database without colliding.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns the namespace of inner under prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: bytes.Clone(prefix)}
}

// Namespace joins parts with '/' and returns the namespace under the result
// plus a trailing '/', so "a" and "a-b" never share keys.
func Namespace(inner DB, parts ...string) *PrefixDB {
	var p []byte
	for _, s := range parts {
		p = append(p, s...)
		p = append(p, '/')
	}
	return NewPrefixDB(inner, p)
}

// Prefix returns a copy of the namespace prefix.
func (p *PrefixDB) Prefix() []byte {
	return bytes.Clone(p.prefix)
}

func (p *PrefixDB) key(k []byte) []byte {
	return append(bytes.Clone(p.prefix), k...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) { return p.inner.Get(p.key(key)) }

func (p *PrefixDB) Put(key, value []byte) error { return p.inner.Put(p.key(key), value) }

func (p *PrefixDB) Delete(key []byte) error { return p.inner.Delete(p.key(key)) }

func (p *PrefixDB) Has(key []byte) (bool, error) { return p.inner.Has(p.key(key)) }

// ForEach visits the namespace's keys that start with prefix. Keys are
// passed to fn without the namespace prefix.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(p.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// DeleteAll removes the whole namespace in one batch.
func (p *PrefixDB) DeleteAll() error {
	batch := NewBatch(p.inner)
	err := p.inner.ForEach(p.prefix, func(key, _ []byte) error {
		return batch.Delete(bytes.Clone(key))
	})
	if err != nil {
		return err
	}
	return batch.Commit()
}

// Close does nothing. The inner DB is closed by its owner.
func (p *PrefixDB) Close() error { return nil }

// NewBatch returns a batch that writes into the namespace through the
// inner DB's batch, so a wallet update stays atomic.
func (p *PrefixDB) NewBatch() Batch {
	return prefixBatch{inner: NewBatch(p.inner), ns: p}
}

type prefixBatch struct {
	inner Batch
	ns    *PrefixDB
}

func (b prefixBatch) Put(key, value []byte) error { return b.inner.Put(b.ns.key(key), value) }

func (b prefixBatch) Delete(key []byte) error { return b.inner.Delete(b.ns.key(key)) }

func (b prefixBatch) Commit() error { return b.inner.Commit() }
