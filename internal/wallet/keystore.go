package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	keystoreVersion = 1
	walletExt       = ".wallet"
)

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrInvalidName    = errors.New("invalid wallet name")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// keystoreFile is the on-disk JSON format for an encrypted wallet seed.
// Coin state lives in the wallet database, not here.
type keystoreFile struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Seed      Envelope  `json:"seed"`
}

// Keystore manages encrypted seeds on disk, one file per wallet name.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

// ValidateName checks a wallet name is usable as a file and namespace name.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+walletExt)
}

// Exists reports whether a wallet file exists.
func (ks *Keystore) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	_, err := os.Stat(ks.walletPath(name))
	return err == nil
}

// Create seals seed under password and writes a new wallet file.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if ks.Exists(name) {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}

	env, err := Seal(seed, password, []byte(name), params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}
	kf := keystoreFile{
		Version:   keystoreVersion,
		CreatedAt: time.Now().UTC(),
		Seed:      *env,
	}
	return ks.writeFile(ks.walletPath(name), &kf)
}

// Load decrypts a wallet and returns the seed bytes.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	seed, err := kf.Seed.Open(password, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	if len(seed) != SeedSize {
		clear(seed)
		return nil, fmt.Errorf("wallet %q: seed is %d bytes", name, len(seed))
	}
	return seed, nil
}

// List returns the names of all wallets in the keystore, sorted.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), walletExt); ok && ValidateName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	if !ks.Exists(name) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(ks.walletPath(name))
}

// writeFile writes through a temp file and rename so a crash never leaves
// a half-written seed.
func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
