package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Flags holds parsed global command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Ledger
	LedgerURL     string
	LedgerTimeout time.Duration

	// Wallet
	Wallet          string
	PendingExpiry   uint64
	AutoConsolidate bool

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args: the subcommand and its arguments.
	Args []string

	// Explicitly-set flags (for zero-value overrides).
	SetPendingExpiry   bool
	SetAutoConsolidate bool
	SetLogJSON         bool
}

// ParseFlags parses the global flags in args (without the program name).
// Parsing stops at the first non-flag argument, the subcommand.
func ParseFlags(args []string, output io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("rlwallet", flag.ContinueOnError)
	fs.SetOutput(output)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	testnet := fs.Bool("testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Ledger
	fs.StringVar(&f.LedgerURL, "ledger", "", "Ledger JSON-RPC URL")
	fs.DurationVar(&f.LedgerTimeout, "ledger-timeout", 0, "Ledger request timeout")

	// Wallet
	fs.StringVar(&f.Wallet, "wallet", "", "Wallet name")
	fs.StringVar(&f.Wallet, "w", "", "Wallet name (shorthand)")
	fs.Uint64Var(&f.PendingExpiry, "pending-expiry", 0, "Blocks before an unconfirmed spend is released (0 = never)")
	fs.BoolVar(&f.AutoConsolidate, "autoconsolidate", false, "Absorb deposits into the rate-limited coin on sync")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		PrintUsage(output)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *testnet {
		f.Network = string(Testnet)
	}
	f.SetPendingExpiry = isFlagSet(fs, "pending-expiry")
	f.SetAutoConsolidate = isFlagSet(fs, "autoconsolidate")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Ledger
	if f.LedgerURL != "" {
		cfg.Ledger.URL = f.LedgerURL
	}
	if f.LedgerTimeout != 0 {
		cfg.Ledger.Timeout = f.LedgerTimeout
	}

	// Wallet
	if f.Wallet != "" {
		cfg.Wallet.Name = f.Wallet
	}
	if f.SetPendingExpiry {
		cfg.Wallet.PendingExpiry = f.PendingExpiry
	}
	if f.SetAutoConsolidate {
		cfg.Wallet.AutoConsolidate = f.AutoConsolidate
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the global help text.
func PrintUsage(w io.Writer) {
	usage := `rlwallet - coin wallet with rate-limited spending

Usage:
  rlwallet [options] <command> [arguments]

Commands:
  create [-force] [-mnemonic]     Create or restore a wallet
  address                         Derive a new receive puzzle hash
  pubkey                          Show the owner key for rate-limited funding
  sync [-follow]                  Apply new ledger blocks
  balance                         Show balances
  send <puzzle_hash> <amount> [fee]
  rl fund <owner_pubkey> <amount> <limit> <interval> [fee]
  rl receive <descriptor>         Set up the rate-limited coin
  rl spend <puzzle_hash> <amount> Spend from the rate-limited coin
  rl deposit <rl_puzzle_hash> <amount> [fee]
  rl consolidate                  Absorb waiting deposits
  rl status                       Show rate-limited coin state

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.rlwallet)
  --config, -c    Config file path (default: <datadir>/rlwallet.conf)

Ledger Options:
  --ledger          Ledger JSON-RPC URL
  --ledger-timeout  Request timeout (e.g. 10s)

Wallet Options:
  --wallet, -w        Wallet name (default: default)
  --pending-expiry    Blocks before an unconfirmed spend is released
  --autoconsolidate   Absorb deposits into the rate-limited coin on sync

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stderr)
  --log-json      Output logs as JSON

Passwords are read from the terminal, or from RLWALLET_PASSWORD when set.
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(args []string, output io.Writer) (*Config, *Flags, error) {
	flags, err := ParseFlags(args, output)
	if err != nil {
		return nil, nil, err
	}

	network := Mainnet
	if strings.ToLower(flags.Network) == string(Testnet) {
		network = Testnet
	}
	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	// The file may have moved the network; make sure its directories exist.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}
	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every start.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
