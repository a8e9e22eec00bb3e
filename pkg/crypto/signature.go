package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// PubKeySize is the length of a compressed secp256k1 public key.
const PubKeySize = 33

// PrivateKey is a secp256k1 key that signs spend messages with Schnorr.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a random key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes wraps a 32-byte secret, such as a derived child key.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Sign signs msg and returns the result as a one-part aggregate, ready to
// be merged with Aggregate. Nonces are deterministic (RFC 6979), so a key
// and message always produce the same signature.
func (pk *PrivateKey) Sign(msg types.Hash) (AggregateSignature, error) {
	sig, err := schnorr.Sign(pk.key, msg[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return AggregateSignature{{PubKey: pk.PublicKey(), Signature: sig.Serialize()}}, nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Serialize returns the 32-byte secret.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero wipes the secret.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// ValidatePublicKey checks that b is a well-formed compressed public key.
func ValidatePublicKey(b []byte) error {
	if len(b) != PubKeySize {
		return fmt.Errorf("public key must be %d bytes, got %d", PubKeySize, len(b))
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	return nil
}

// Verify checks one Schnorr signature by pubKey over msg. Malformed keys
// or signatures verify as false.
func Verify(pubKey []byte, msg types.Hash, signature []byte) bool {
	pub, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(msg[:], pub)
}
