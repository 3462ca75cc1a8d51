package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Database.DSN = "postgres://u:p@localhost/oracle"
	cfg.Chain.RPCURL = "https://rpc.example"
	cfg.Chain.ChainID = 50312
	cfg.Chain.PrivateKey = "0xabc"
	cfg.Provider.Token = "tok"
	cfg.Contracts = map[string]ContractsConfig{
		"testnet": {
			PoolCore:     "0x0000000000000000000000000000000000000001",
			GuidedOracle: "0x0000000000000000000000000000000000000002",
			Oddyssey:     "0x0000000000000000000000000000000000000003",
		},
	}
	return cfg
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateMissingContracts(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "mainnet"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted an environment with no contract row")
	}
}

func TestValidateMissingSigner(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.PrivateKey = ""
	cfg.Chain.EncryptedKeyPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted a config with no signer key")
	}
}

func TestValidateZeroConfirmations(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.Confirmations = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted confirmations = 0")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
environment = "testnet"

[provider]
token = "from-file"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BITREDICT_PROVIDER_TOKEN", "from-env")
	t.Setenv("BITREDICT_RPC_URL", "https://rpc.override")
	t.Setenv("BITREDICT_CONFIRMATIONS", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Token != "from-env" {
		t.Errorf("provider token = %q, want env override", cfg.Provider.Token)
	}
	if cfg.Chain.RPCURL != "https://rpc.override" {
		t.Errorf("rpc url = %q", cfg.Chain.RPCURL)
	}
	if cfg.Chain.Confirmations != 5 {
		t.Errorf("confirmations = %d, want 5", cfg.Chain.Confirmations)
	}
	// File values that were not overridden survive.
	if cfg.Environment != "testnet" {
		t.Errorf("environment = %q", cfg.Environment)
	}
	// Defaults fill everything else.
	if cfg.Indexer.ReorgDepth != 12 {
		t.Errorf("reorg depth default = %d", cfg.Indexer.ReorgDepth)
	}
}
