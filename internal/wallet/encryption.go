package wallet

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// SaltSize is the Argon2id salt length.
const SaltSize = 32

// Upper bounds on KDF parameters read back from disk.
const (
	maxKDFMemory     = 4 * 1024 * 1024 // KiB
	maxKDFIterations = 64
)

// ErrDecrypt is returned when a sealed seed cannot be opened, either
// because the password is wrong or the envelope was modified.
var ErrDecrypt = errors.New("wrong password or corrupted wallet")

// EncryptionParams holds Argon2id parameters.
type EncryptionParams struct {
	Memory      uint32 `json:"memory"` // KiB
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultParams returns recommended Argon2id parameters.
func DefaultParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func (p EncryptionParams) validate() error {
	switch {
	case p.Memory == 0 || p.Memory > maxKDFMemory:
		return fmt.Errorf("kdf memory %d KiB out of range", p.Memory)
	case p.Iterations == 0 || p.Iterations > maxKDFIterations:
		return fmt.Errorf("kdf iterations %d out of range", p.Iterations)
	case p.Parallelism == 0:
		return fmt.Errorf("kdf parallelism must be positive")
	}
	return nil
}

// Envelope is a seed sealed with XChaCha20-Poly1305 under an Argon2id key.
// The additional data (the wallet name) is authenticated but not stored, so
// an envelope copied under another name fails to open.
type Envelope struct {
	KDF        EncryptionParams `json:"kdf"`
	Salt       types.HexBytes   `json:"salt"`
	Nonce      types.HexBytes   `json:"nonce"`
	Ciphertext types.HexBytes   `json:"ciphertext"`
}

// Seal encrypts plaintext under password.
func Seal(plaintext, password, additional []byte, params EncryptionParams) (*Envelope, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	env := &Envelope{
		KDF:   params,
		Salt:  make([]byte, SaltSize),
		Nonce: make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	err := env.withCipher(password, func(aead cipherAEAD) error {
		env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, additional)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Open decrypts the envelope.
func (e *Envelope) Open(password, additional []byte) ([]byte, error) {
	if err := e.KDF.validate(); err != nil {
		return nil, err
	}
	if len(e.Salt) != SaltSize || len(e.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("malformed envelope")
	}
	if len(e.Ciphertext) < chacha20poly1305.Overhead {
		return nil, fmt.Errorf("ciphertext too short: %d bytes", len(e.Ciphertext))
	}

	var plaintext []byte
	err := e.withCipher(password, func(aead cipherAEAD) error {
		var err error
		plaintext, err = aead.Open(nil, e.Nonce, e.Ciphertext, additional)
		if err != nil {
			return ErrDecrypt
		}
		return nil
	})
	return plaintext, err
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// withCipher derives the key, runs fn with the AEAD and wipes the key.
func (e *Envelope) withCipher(password []byte, fn func(cipherAEAD) error) error {
	key := argon2.IDKey(password, e.Salt, e.KDF.Iterations, e.KDF.Memory, e.KDF.Parallelism, chacha20poly1305.KeySize)
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}
	return fn(aead)
}
