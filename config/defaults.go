package config

import "time"

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Ledger: LedgerConfig{
			URL:          "http://127.0.0.1:8545/",
			Timeout:      10 * time.Second,
			PollInterval: 5 * time.Second,
		},
		Wallet: WalletConfig{
			Name:            "default",
			PendingExpiry:   100,
			AutoConsolidate: false,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Ledger.URL = "http://127.0.0.1:8645/"
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
