package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// SeedSize is the length of a BIP-39 seed in bytes.
const SeedSize = 64

// MnemonicEntropyBits gives 24-word mnemonics.
const MnemonicEntropyBits = 256

// ErrInvalidMnemonic is returned for a mnemonic with unknown words, a
// wrong word count or a bad checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// NormalizeMnemonic lowercases a typed or pasted mnemonic and collapses
// its whitespace to single spaces.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// ValidateMnemonic reports whether the normalized mnemonic is valid.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(mnemonic))
}

// SeedFromMnemonic derives the wallet seed (BIP-39 PBKDF2-SHA512) from a
// mnemonic and an optional passphrase. The mnemonic is normalized first;
// the passphrase is used as given.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	m := NormalizeMnemonic(mnemonic)
	seed, err := bip39.NewSeedWithErrorChecking(m, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return seed, nil
}
