package main

import (
	"testing"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/storage"
)

func TestWalletStore_Isolated(t *testing.T) {
	db := storage.NewMemory()
	alice := walletStore(db, "alice")
	bob := walletStore(db, "bob")

	if err := alice.Put([]byte("meta"), []byte{1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, _ := bob.Has([]byte("meta")); ok {
		t.Error("bob sees alice's state")
	}
	if ok, _ := db.Has([]byte("w/alice/meta")); !ok {
		t.Error("alice's state not under w/alice/")
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	zero(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("b[%d] = %d, want 0", i, v)
		}
	}
}
