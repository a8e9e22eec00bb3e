package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// BIP-44 derivation path constants.
// Full path: m/44'/CoinType'/0'/0/index
const (
	// PurposeBIP44 is the BIP-44 purpose field (hardened).
	PurposeBIP44 = bip32.FirstHardenedChild + 44

	// CoinType is the coin type the wallet derives under (hardened).
	CoinType = bip32.FirstHardenedChild + 8888

	// AccountDefault is the only account a wallet uses (hardened).
	AccountDefault = bip32.FirstHardenedChild + 0

	// ChangeExternal is the branch every key index lives on.
	ChangeExternal = 0
)

// HDKey represents a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DeriveChild derives a child key at the given index.
// For hardened derivation, add bip32.FirstHardenedChild to the index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// PrivateKeyBytes returns the raw 32-byte private key, or nil for a
// public-only key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	// bip32 Key.Key is 33 bytes with a leading 0x00 for private keys.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *HDKey) PublicKeyBytes() []byte {
	return k.key.PublicKey().Key
}

// PrivateKey returns the signing key. Fails for a public-only key.
func (k *HDKey) PrivateKey() (*crypto.PrivateKey, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, fmt.Errorf("cannot sign with a public key")
	}
	return crypto.PrivateKeyFromBytes(priv)
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Neuter returns a public-key-only copy.
func (k *HDKey) Neuter() *HDKey {
	return &HDKey{key: k.key.PublicKey()}
}

// Keychain derives the wallet's sequential keypairs at
// m/44'/8888'/0'/0/index and signs with them. Only keys that were derived
// can sign. Not safe for concurrent use; the Wallet serializes access.
type Keychain struct {
	branch *HDKey
	keys   map[uint32]*crypto.PrivateKey
	byPub  map[string]uint32
}

// NewKeychain creates a keychain from a wallet seed.
func NewKeychain(seed []byte) (*Keychain, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	branch, err := master.DerivePath(PurposeBIP44, CoinType, AccountDefault, ChangeExternal)
	if err != nil {
		return nil, err
	}
	return &Keychain{
		branch: branch,
		keys:   make(map[uint32]*crypto.PrivateKey),
		byPub:  make(map[string]uint32),
	}, nil
}

// Derive derives the keypair at index and returns its public key.
func (kc *Keychain) Derive(index uint32) ([]byte, error) {
	if key, ok := kc.keys[index]; ok {
		return key.PublicKey(), nil
	}
	child, err := kc.branch.DeriveChild(index)
	if err != nil {
		return nil, err
	}
	key, err := child.PrivateKey()
	if err != nil {
		return nil, err
	}
	pub := key.PublicKey()
	kc.keys[index] = key
	kc.byPub[string(pub)] = index
	return pub, nil
}

// IndexOf returns the index a public key was derived at.
func (kc *Keychain) IndexOf(pubKey []byte) (uint32, bool) {
	idx, ok := kc.byPub[string(pubKey)]
	return idx, ok
}

// Sign signs msg with the key at index. The index must have been derived.
func (kc *Keychain) Sign(msg types.Hash, index uint32) (crypto.AggregateSignature, error) {
	key, ok := kc.keys[index]
	if !ok {
		return nil, fmt.Errorf("key index %d: %w", index, bundle.ErrNoSigner)
	}
	return key.Sign(msg)
}

// Aggregate combines signatures into one aggregate.
func (kc *Keychain) Aggregate(sigs ...crypto.AggregateSignature) crypto.AggregateSignature {
	return crypto.Aggregate(sigs...)
}

// SignFor signs msg with the derived key behind pubKey. It satisfies
// bundle.SignFunc.
func (kc *Keychain) SignFor(pubKey []byte, msg types.Hash) (crypto.AggregateSignature, error) {
	idx, ok := kc.IndexOf(pubKey)
	if !ok {
		return nil, bundle.ErrNoSigner
	}
	return kc.Sign(msg, idx)
}

// Zero wipes every derived private key.
func (kc *Keychain) Zero() {
	for idx, key := range kc.keys {
		key.Zero()
		delete(kc.keys, idx)
	}
	clear(kc.byPub)
}
