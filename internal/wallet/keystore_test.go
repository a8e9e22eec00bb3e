package wallet

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := NewKeystore(t.TempDir())
	if err != nil {
		t.Fatalf("NewKeystore() error: %v", err)
	}
	return ks
}

func TestKeystore_CreateAndLoad(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeed(t)

	if err := ks.Create("alice", seed, []byte("pw"), fastParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	loaded, err := ks.Load("alice", []byte("pw"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !bytes.Equal(loaded, seed) {
		t.Error("loaded seed does not match original")
	}
}

func TestKeystore_CreateDuplicate(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeed(t)
	if err := ks.Create("alice", seed, []byte("pw"), fastParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := ks.Create("alice", seed, []byte("pw"), fastParams()); !errors.Is(err, ErrWalletExists) {
		t.Errorf("duplicate Create err = %v, want ErrWalletExists", err)
	}
}

func TestKeystore_LoadErrors(t *testing.T) {
	ks := testKeystore(t)
	if err := ks.Create("alice", testSeed(t), []byte("pw"), fastParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := ks.Load("alice", []byte("nope")); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong password err = %v, want ErrDecrypt", err)
	}
	if _, err := ks.Load("bob", []byte("pw")); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("missing wallet err = %v, want ErrWalletNotFound", err)
	}
	if _, err := ks.Load("../alice", []byte("pw")); !errors.Is(err, ErrInvalidName) {
		t.Errorf("path name err = %v, want ErrInvalidName", err)
	}
}

func TestKeystore_RenamedFileFailsToOpen(t *testing.T) {
	ks := testKeystore(t)
	if err := ks.Create("alice", testSeed(t), []byte("pw"), fastParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := os.Rename(ks.walletPath("alice"), ks.walletPath("mallory")); err != nil {
		t.Fatal(err)
	}
	if _, err := ks.Load("mallory", []byte("pw")); !errors.Is(err, ErrDecrypt) {
		t.Errorf("renamed wallet err = %v, want ErrDecrypt", err)
	}
}

func TestKeystore_ListAndDelete(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeed(t)
	for _, name := range []string{"carol", "alice", "bob"} {
		if err := ks.Create(name, seed, []byte("pw"), fastParams()); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
	}
	// Unrelated files are ignored.
	os.WriteFile(filepath.Join(ks.path, "notes.txt"), []byte("x"), 0600)

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(names) != len(want) {
		t.Fatalf("List = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	if err := ks.Delete("bob"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ks.Exists("bob") {
		t.Error("bob should be gone")
	}
	if err := ks.Delete("bob"); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("second Delete err = %v, want ErrWalletNotFound", err)
	}
}

func TestKeystore_FilePermissions(t *testing.T) {
	ks := testKeystore(t)
	if err := ks.Create("alice", testSeed(t), []byte("pw"), fastParams()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	info, err := os.Stat(ks.walletPath("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
	if _, err := os.Stat(ks.walletPath("alice") + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain")
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"alice", true},
		{"rl_wallet-2", true},
		{"", false},
		{"a/b", false},
		{"..", false},
		{"with space", false},
	}
	for _, tt := range tests {
		if err := ValidateName(tt.name); (err == nil) != tt.ok {
			t.Errorf("ValidateName(%q) = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}
