package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/wallet"
)

// Validate checks the config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is empty")
	}

	u, err := url.Parse(cfg.Ledger.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ledger.url must be an http(s) URL, got %q", cfg.Ledger.URL)
	}
	if cfg.Ledger.Timeout <= 0 {
		return fmt.Errorf("ledger.timeout must be positive")
	}
	if cfg.Ledger.PollInterval <= 0 {
		return fmt.Errorf("ledger.poll must be positive")
	}

	if err := wallet.ValidateName(cfg.Wallet.Name); err != nil {
		return fmt.Errorf("wallet.name: %w", err)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil || cfg.Log.Level == "" {
		return fmt.Errorf("log.level %q is not a level (debug, info, warn, error)", cfg.Log.Level)
	}
	return nil
}
