package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration from a .conf file. A missing file yields no
// values.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key. Unknown keys are ignored.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Ledger
	case "ledger.url", "ledger":
		cfg.Ledger.URL = value
	case "ledger.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Ledger.Timeout = d
	case "ledger.poll":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Ledger.PollInterval = d

	// Wallet
	case "wallet.name", "wallet":
		cfg.Wallet.Name = value
	case "wallet.pending_expiry":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Wallet.PendingExpiry = n
	case "wallet.autoconsolidate":
		cfg.Wallet.AutoConsolidate = parseBool(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	content := `# RL Wallet Configuration

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.rlwallet)
# datadir = ~/.rlwallet

# ============================================================================
# Ledger
# ============================================================================

# JSON-RPC endpoint of the ledger
ledger.url = ` + def.Ledger.URL + `
ledger.timeout = ` + def.Ledger.Timeout.String() + `
# Interval between syncs for "sync -follow"
ledger.poll = ` + def.Ledger.PollInterval.String() + `

# ============================================================================
# Wallet
# ============================================================================

wallet.name = ` + def.Wallet.Name + `
# Blocks after which an unconfirmed spend releases its coins (0 = never)
wallet.pending_expiry = ` + strconv.FormatUint(def.Wallet.PendingExpiry, 10) + `
# Absorb deposits into the rate-limited coin as they arrive
wallet.autoconsolidate = false

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
