package crypto

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

func mustKey(t *testing.T) *PrivateKey {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return key
}

func TestGenerateKey(t *testing.T) {
	k1, k2 := mustKey(t), mustKey(t)
	if len(k1.Serialize()) != 32 {
		t.Errorf("Serialize() length = %d, want 32", len(k1.Serialize()))
	}
	if err := ValidatePublicKey(k1.PublicKey()); err != nil {
		t.Errorf("generated public key invalid: %v", err)
	}
	if bytes.Equal(k1.Serialize(), k2.Serialize()) {
		t.Error("two generated keys are identical")
	}
}

func TestPrivateKeyFromBytes(t *testing.T) {
	original := mustKey(t)
	restored, err := PrivateKeyFromBytes(original.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	if !bytes.Equal(original.PublicKey(), restored.PublicKey()) {
		t.Error("restored key has a different public key")
	}

	for _, n := range []int{0, 31, 33, 64} {
		if _, err := PrivateKeyFromBytes(make([]byte, n)); err == nil {
			t.Errorf("PrivateKeyFromBytes(%d bytes) should fail", n)
		}
	}
}

func TestSign_OnePart(t *testing.T) {
	key := mustKey(t)
	msg := HashConcat(Hash([]byte("coin")), Hash([]byte("conditions")))

	sig, err := key.Sign(msg)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(sig) != 1 {
		t.Fatalf("Sign() parts = %d, want 1", len(sig))
	}
	if !bytes.Equal(sig[0].PubKey, key.PublicKey()) {
		t.Error("partial signature carries the wrong public key")
	}
	if !Verify(key.PublicKey(), msg, sig[0].Signature) {
		t.Error("signature does not verify")
	}

	again, _ := key.Sign(msg)
	if !bytes.Equal(sig[0].Signature, again[0].Signature) {
		t.Error("signing is not deterministic")
	}
}

func TestVerify_Rejects(t *testing.T) {
	key, other := mustKey(t), mustKey(t)
	msg := Hash([]byte("spend"))
	sig, err := key.Sign(msg)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	good := sig[0].Signature
	corrupted := append([]byte(nil), good...)
	corrupted[10] ^= 0xff

	tests := []struct {
		name   string
		pubKey []byte
		msg    types.Hash
		sig    []byte
	}{
		{"wrong message", key.PublicKey(), Hash([]byte("other")), good},
		{"wrong key", other.PublicKey(), msg, good},
		{"corrupted signature", key.PublicKey(), msg, corrupted},
		{"short signature", key.PublicKey(), msg, good[:32]},
		{"malformed key", []byte{0x02, 0x01}, msg, good},
		{"nil key", nil, msg, good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Verify(tt.pubKey, tt.msg, tt.sig) {
				t.Error("Verify() = true, want false")
			}
		})
	}
}

func TestPrivateKey_Zero(t *testing.T) {
	key := mustKey(t)
	key.Zero()
	if !bytes.Equal(key.Serialize(), make([]byte, 32)) {
		t.Error("Serialize() should return zeros after Zero()")
	}
}
