package storage

import (
	"errors"
	"fmt"
	"sort"
	"testing"
)

func TestPrefixDB_Suite(t *testing.T) {
	testDB(t, NewPrefixDB(NewMemory(), []byte("w/alice/")))
}

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	alice := NewPrefixDB(inner, []byte("w/alice/"))
	bob := NewPrefixDB(inner, []byte("w/bob/"))

	alice.Put([]byte("m/meta"), []byte("fromAlice"))
	bob.Put([]byte("m/meta"), []byte("fromBob"))

	got, err := alice.Get([]byte("m/meta"))
	if err != nil || string(got) != "fromAlice" {
		t.Fatalf("alice.Get = %q, %v", got, err)
	}
	got, err = bob.Get([]byte("m/meta"))
	if err != nil || string(got) != "fromBob" {
		t.Fatalf("bob.Get = %q, %v", got, err)
	}
	if _, err := alice.Get([]byte("w/bob/m/meta")); !errors.Is(err, ErrNotFound) {
		t.Fatal("alice should not see bob's raw key")
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("w/alice/"))
	db.Put([]byte("c/k1"), []byte("v1"))
	db.Put([]byte("c/k2"), []byte("v2"))
	db.Put([]byte("m/meta"), []byte("v3"))

	var keys []string
	err := db.ForEach([]byte("c/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "c/k1" || keys[1] != "c/k2" {
		t.Fatalf("ForEach keys = %v, want [c/k1 c/k2]", keys)
	}
}

func TestPrefixDB_ForEachStopEarly(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("p/"))
	for i := 0; i < 10; i++ {
		db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}

	count := 0
	stopErr := fmt.Errorf("stop")
	err := db.ForEach(nil, func(key, value []byte) error {
		count++
		if count >= 3 {
			return stopErr
		}
		return nil
	})
	if err != stopErr {
		t.Fatalf("ForEach err = %v, want stopErr", err)
	}
	if count != 3 {
		t.Fatalf("ForEach called %d times, want 3", count)
	}
}

func TestPrefixDB_BatchUsesNamespace(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("w/alice/"))

	batch := db.NewBatch()
	batch.Put([]byte("c/1"), []byte("coin"))
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := inner.Get([]byte("w/alice/c/1"))
	if err != nil || string(got) != "coin" {
		t.Fatalf("inner.Get = %q, %v", got, err)
	}
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	inner := NewMemory()
	alice := NewPrefixDB(inner, []byte("w/alice/"))
	bob := NewPrefixDB(inner, []byte("w/bob/"))

	alice.Put([]byte("k1"), []byte("v1"))
	alice.Put([]byte("k2"), []byte("v2"))
	bob.Put([]byte("k1"), []byte("other"))

	if err := alice.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	for _, k := range []string{"k1", "k2"} {
		if ok, _ := alice.Has([]byte(k)); ok {
			t.Fatalf("alice still has %q after DeleteAll", k)
		}
	}
	got, err := bob.Get([]byte("k1"))
	if err != nil || string(got) != "other" {
		t.Fatalf("bob.Get after alice.DeleteAll = %q, %v", got, err)
	}

	empty := NewPrefixDB(inner, []byte("w/empty/"))
	if err := empty.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll on empty: %v", err)
	}
}

func TestPrefixDB_CloseIsNoop(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("x/"))
	db.Put([]byte("key"), []byte("val"))

	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := inner.Get([]byte("x/key"))
	if err != nil || string(got) != "val" {
		t.Fatalf("inner.Get after Close = %q, %v", got, err)
	}
}

func TestNamespace(t *testing.T) {
	inner := NewMemory()
	a := Namespace(inner, "w", "a")
	ab := Namespace(inner, "w", "a-b")

	if got := string(a.Prefix()); got != "w/a/" {
		t.Fatalf("Prefix() = %q, want w/a/", got)
	}
	a.Put([]byte("m"), []byte("1"))
	ab.Put([]byte("m"), []byte("2"))
	if err := a.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if ok, _ := a.Has([]byte("m")); ok {
		t.Error("namespace a not cleared")
	}
	if v, err := ab.Get([]byte("m")); err != nil || string(v) != "2" {
		t.Errorf("namespace a-b = %q, %v; want 2", v, err)
	}
}
