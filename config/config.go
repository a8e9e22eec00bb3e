// Package config handles rlwallet configuration.
//
// Settings come from three layers, later ones winning: network defaults,
// the rlwallet.conf file in the data directory, and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds the CLI's runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Remote ledger
	Ledger LedgerConfig

	// Wallet
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// LedgerConfig points the wallet at a ledger's JSON-RPC endpoint.
type LedgerConfig struct {
	URL          string        `conf:"ledger.url"`
	Timeout      time.Duration `conf:"ledger.timeout"`
	PollInterval time.Duration `conf:"ledger.poll"` // sync --follow tick
}

// WalletConfig holds wallet settings.
type WalletConfig struct {
	Name            string `conf:"wallet.name"`
	PendingExpiry   uint64 `conf:"wallet.pending_expiry"` // blocks, 0 = never
	AutoConsolidate bool   `conf:"wallet.autoconsolidate"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.rlwallet
//	macOS:   ~/Library/Application Support/RLWallet
//	Windows: %APPDATA%\RLWallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rlwallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "RLWallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "RLWallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "RLWallet")
	default:
		return filepath.Join(home, ".rlwallet")
	}
}

// NetworkDir returns the network-specific data directory.
func (c *Config) NetworkDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// KeystoreDir returns the encrypted seed directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDir(), "keystore")
}

// DBDir returns the wallet state database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.NetworkDir(), "wallets.db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "rlwallet.conf")
}
