package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rlwallet.conf")
	content := `# comment
network = testnet

ledger.url = "http://10.0.0.1:9000/"
wallet.name = 'alice'
wallet.pending_expiry = 12
wallet.autoconsolidate = yes
unknown.key = ignored
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if values["ledger.url"] != "http://10.0.0.1:9000/" || values["wallet.name"] != "alice" {
		t.Errorf("quotes not stripped: %v", values)
	}

	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.Network != Testnet {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.Wallet.Name != "alice" || cfg.Wallet.PendingExpiry != 12 || !cfg.Wallet.AutoConsolidate {
		t.Errorf("wallet = %+v", cfg.Wallet)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil || len(values) != 0 {
		t.Fatalf("LoadFile(missing) = %v, %v", values, err)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("network\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("err = %v, want line 1 error", err)
	}
}

func TestApplyFileConfig_BadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"ledger.timeout", "soon"},
		{"ledger.poll", "5"},
		{"wallet.pending_expiry", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ApplyFileConfig(DefaultMainnet(), map[string]string{tt.key: tt.value})
			if err == nil {
				t.Fatalf("%s = %q accepted", tt.key, tt.value)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{"--testnet", "-w", "bob", "--pending-expiry=0", "send", "abc", "10"}, io.Discard)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if f.Network != "testnet" || f.Wallet != "bob" {
		t.Errorf("flags = %+v", f)
	}
	if !f.SetPendingExpiry || f.PendingExpiry != 0 {
		t.Error("explicit zero pending expiry not recorded")
	}
	if len(f.Args) != 3 || f.Args[0] != "send" {
		t.Errorf("args = %v", f.Args)
	}

	cfg := DefaultMainnet()
	ApplyFlags(cfg, f)
	if cfg.Network != Testnet || cfg.Wallet.Name != "bob" || cfg.Wallet.PendingExpiry != 0 {
		t.Errorf("config after flags = %+v", cfg)
	}
}

func TestParseFlags_Unknown(t *testing.T) {
	if _, err := ParseFlags([]string{"--bogus"}, io.Discard); err == nil {
		t.Fatal("unknown flag accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad network", func(c *Config) { c.Network = "devnet" }, false},
		{"empty datadir", func(c *Config) { c.DataDir = "" }, false},
		{"bad url scheme", func(c *Config) { c.Ledger.URL = "ftp://host/" }, false},
		{"url without host", func(c *Config) { c.Ledger.URL = "http://" }, false},
		{"zero timeout", func(c *Config) { c.Ledger.Timeout = 0 }, false},
		{"zero poll", func(c *Config) { c.Ledger.PollInterval = 0 }, false},
		{"bad wallet name", func(c *Config) { c.Wallet.Name = "../etc" }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, false},
		{"https ledger", func(c *Config) { c.Ledger.URL = "https://ledger.example.com/rpc" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tt.modify(cfg)
			err := Validate(cfg)
			if (err == nil) != tt.ok {
				t.Errorf("Validate err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
	if err := Validate(nil); err == nil {
		t.Error("nil config accepted")
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()

	// First run writes the default config file.
	cfg, _, err := Load([]string{"--datadir", dir, "balance"}, io.Discard)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "rlwallet.conf")); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if _, err := os.Stat(cfg.KeystoreDir()); err != nil {
		t.Fatalf("keystore dir not created: %v", err)
	}

	conf := "ledger.timeout = 3s\nwallet.name = fromfile\n"
	if err := os.WriteFile(filepath.Join(dir, "rlwallet.conf"), []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, flags, err := Load([]string{"--datadir", dir, "-w", "fromflag", "sync"}, io.Discard)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ledger.Timeout != 3*time.Second {
		t.Errorf("timeout = %s, want the file's 3s", cfg.Ledger.Timeout)
	}
	if cfg.Wallet.Name != "fromflag" {
		t.Errorf("wallet = %s, want the flag to win", cfg.Wallet.Name)
	}
	if len(flags.Args) != 1 || flags.Args[0] != "sync" {
		t.Errorf("args = %v", flags.Args)
	}
}
