package wallet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
)

func TestNewMasterKey(t *testing.T) {
	master, err := NewMasterKey(testSeed(t))
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	if master.Depth() != 0 {
		t.Errorf("master key depth = %d, want 0", master.Depth())
	}
	if len(master.PrivateKeyBytes()) != 32 {
		t.Errorf("private key length = %d, want 32", len(master.PrivateKeyBytes()))
	}
	if len(master.PublicKeyBytes()) != 33 {
		t.Errorf("public key length = %d, want 33", len(master.PublicKeyBytes()))
	}
}

func TestNewMasterKey_InvalidSeedLength(t *testing.T) {
	for _, n := range []int{0, 32, 128} {
		if _, err := NewMasterKey(make([]byte, n)); err == nil {
			t.Errorf("seed of %d bytes should be rejected", n)
		}
	}
}

func TestDerivePath(t *testing.T) {
	master, _ := NewMasterKey(testSeed(t))

	c1, _ := master.DeriveChild(PurposeBIP44)
	c2, _ := c1.DeriveChild(CoinType)
	combined, err := master.DerivePath(PurposeBIP44, CoinType)
	if err != nil {
		t.Fatalf("DerivePath() error: %v", err)
	}
	if !bytes.Equal(c2.PrivateKeyBytes(), combined.PrivateKeyBytes()) {
		t.Error("DerivePath should equal sequential DeriveChild")
	}
	if combined.Depth() != 2 {
		t.Errorf("depth = %d, want 2", combined.Depth())
	}
}

func TestNeuter(t *testing.T) {
	master, _ := NewMasterKey(testSeed(t))
	pub := master.Neuter()

	if pub.PrivateKeyBytes() != nil {
		t.Error("neutered key PrivateKeyBytes() should return nil")
	}
	if !bytes.Equal(master.PublicKeyBytes(), pub.PublicKeyBytes()) {
		t.Error("neutered key should have same public key")
	}
	if _, err := pub.PrivateKey(); err == nil {
		t.Error("PrivateKey() from public key should return error")
	}
}

func TestKeychain_DeterministicAndDistinct(t *testing.T) {
	kc1, err := NewKeychain(testSeed(t))
	if err != nil {
		t.Fatalf("NewKeychain: %v", err)
	}
	kc2, _ := NewKeychain(testSeed(t))

	seen := make(map[string]bool)
	for i := uint32(0); i < 5; i++ {
		p1, err := kc1.Derive(i)
		if err != nil {
			t.Fatalf("Derive(%d): %v", i, err)
		}
		p2, _ := kc2.Derive(i)
		if !bytes.Equal(p1, p2) {
			t.Errorf("index %d differs between keychains of the same seed", i)
		}
		if seen[string(p1)] {
			t.Errorf("index %d repeats an earlier key", i)
		}
		seen[string(p1)] = true
		if idx, ok := kc1.IndexOf(p1); !ok || idx != i {
			t.Errorf("IndexOf = %d, %v, want %d", idx, ok, i)
		}
	}
}

func TestKeychain_MatchesBIP44Path(t *testing.T) {
	master, _ := NewMasterKey(testSeed(t))
	want, err := master.DerivePath(PurposeBIP44, CoinType, AccountDefault, ChangeExternal, 3)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	kc, _ := NewKeychain(testSeed(t))
	got, err := kc.Derive(3)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if !bytes.Equal(got, want.PublicKeyBytes()) {
		t.Error("keychain index 3 should be m/44'/8888'/0'/0/3")
	}
	if want.Depth() != 5 {
		t.Errorf("depth = %d, want 5", want.Depth())
	}
}

func TestKeychain_SignAndAggregate(t *testing.T) {
	kc, _ := NewKeychain(testSeed(t))
	pub0, _ := kc.Derive(0)
	pub1, _ := kc.Derive(1)

	m0 := crypto.Hash([]byte("zero"))
	m1 := crypto.Hash([]byte("one"))
	s0, err := kc.Sign(m0, 0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	s1, err := kc.SignFor(pub1, m1)
	if err != nil {
		t.Fatalf("SignFor: %v", err)
	}

	agg := kc.Aggregate(s1, s0)
	ok := agg.Verify([]crypto.SignedMessage{
		{PubKey: pub0, Message: m0},
		{PubKey: pub1, Message: m1},
	})
	if !ok {
		t.Error("aggregate should verify both messages")
	}
}

func TestKeychain_UnknownKey(t *testing.T) {
	kc, _ := NewKeychain(testSeed(t))
	if _, err := kc.Sign(crypto.Hash(nil), 9); !errors.Is(err, bundle.ErrNoSigner) {
		t.Errorf("Sign underived index err = %v, want ErrNoSigner", err)
	}
	if _, err := kc.SignFor(make([]byte, 33), crypto.Hash(nil)); !errors.Is(err, bundle.ErrNoSigner) {
		t.Errorf("SignFor unknown pubkey err = %v, want ErrNoSigner", err)
	}
}

func TestKeychain_Zero(t *testing.T) {
	kc, _ := NewKeychain(testSeed(t))
	pub, _ := kc.Derive(0)
	kc.Zero()
	if _, ok := kc.IndexOf(pub); ok {
		t.Error("Zero should forget derived keys")
	}
}
