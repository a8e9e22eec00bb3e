package wallet

import (
	"bytes"
	"errors"
	"testing"
)

// fastParams returns low-cost Argon2 params for fast tests.
func fastParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64, // 64 KiB (minimal)
		Iterations:  1,
		Parallelism: 1,
	}
}

func TestSealOpen_Roundtrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"seed", bytes.Repeat([]byte{0x5A}, SeedSize)},
		{"empty", []byte{}},
		{"large", bytes.Repeat([]byte("0123456789"), 1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Seal(tt.plaintext, []byte("pw"), []byte("alice"), fastParams())
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			got, err := env.Open([]byte("pw"), []byte("alice"))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Error("roundtrip mismatch")
			}
		})
	}
}

func TestOpen_Rejects(t *testing.T) {
	env, err := Seal([]byte("secret"), []byte("pw"), []byte("alice"), fastParams())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := env.Open([]byte("wrong"), []byte("alice")); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong password err = %v, want ErrDecrypt", err)
	}
	if _, err := env.Open([]byte("pw"), []byte("bob")); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong name err = %v, want ErrDecrypt", err)
	}

	tampered := *env
	tampered.Ciphertext = append([]byte(nil), env.Ciphertext...)
	tampered.Ciphertext[0] ^= 0xFF
	if _, err := tampered.Open([]byte("pw"), []byte("alice")); !errors.Is(err, ErrDecrypt) {
		t.Errorf("tampered err = %v, want ErrDecrypt", err)
	}

	short := *env
	short.Ciphertext = env.Ciphertext[:4]
	if _, err := short.Open([]byte("pw"), []byte("alice")); err == nil {
		t.Error("truncated ciphertext should fail")
	}

	badKDF := *env
	badKDF.KDF.Memory = 0
	if _, err := badKDF.Open([]byte("pw"), []byte("alice")); err == nil {
		t.Error("zero kdf memory should fail")
	}
}

func TestSeal_FreshSaltAndNonce(t *testing.T) {
	a, _ := Seal([]byte("same"), []byte("pw"), nil, fastParams())
	b, _ := Seal([]byte("same"), []byte("pw"), nil, fastParams())
	if bytes.Equal(a.Salt, b.Salt) || bytes.Equal(a.Nonce, b.Nonce) {
		t.Error("salt and nonce should be random per seal")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Error("ciphertexts should differ")
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if err := p.validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	if p.Memory < 64*1024 {
		t.Errorf("default memory = %d KiB, want at least 64 MiB", p.Memory)
	}
}
