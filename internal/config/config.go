// Package config defines the configuration shared by the oracle backend
// binaries and provides loading and validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BITREDICT_* environment
// variables.
type Config struct {
	Environment string           `toml:"environment"`
	LogLevel    string           `toml:"log_level"`
	Database    DatabaseConfig   `toml:"database"`
	Redis       RedisConfig      `toml:"redis"`
	Provider    ProviderConfig   `toml:"provider"`
	Chain       ChainConfig      `toml:"chain"`
	Contracts   map[string]ContractsConfig `toml:"contracts"`
	Ingestor    IngestorConfig   `toml:"ingestor"`
	Settlement  SettlementConfig `toml:"settlement"`
	Oddyssey    OddysseyConfig   `toml:"oddyssey"`
	Indexer     IndexerConfig    `toml:"indexer"`
	S3          S3Config         `toml:"s3"`
	Notify      NotifyConfig     `toml:"notify"`
	Ops         OpsConfig        `toml:"ops"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the live fixture cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ProviderConfig holds sports-data provider parameters.
type ProviderConfig struct {
	BaseURL        string  `toml:"base_url"`
	Token          string  `toml:"token"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RatePerSecond  float64 `toml:"rate_per_second"`
	RateBurst      int     `toml:"rate_burst"`
}

// Timeout returns the per-request HTTP timeout.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ChainConfig holds RPC endpoint, signer and transaction policy parameters.
type ChainConfig struct {
	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	Confirmations    uint64 `toml:"confirmations"`
	GasLimit         uint64 `toml:"gas_limit"`
	MaxFeeGwei       int64  `toml:"max_fee_gwei"`
	MaxTipGwei       int64  `toml:"max_tip_gwei"`
	ReadTimeoutSec   int    `toml:"read_timeout_seconds"`
	SendTimeoutSec   int    `toml:"send_timeout_seconds"`
}

// ReadTimeout is the per-call timeout for RPC reads.
func (c ChainConfig) ReadTimeout() time.Duration {
	if c.ReadTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// SendTimeout bounds the wait for transaction inclusion, before
// confirmations.
func (c ChainConfig) SendTimeout() time.Duration {
	if c.SendTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.SendTimeoutSec) * time.Second
}

// ContractsConfig is one row of the per-environment contract address table.
type ContractsConfig struct {
	PoolCore     string `toml:"pool_core"`
	GuidedOracle string `toml:"guided_oracle"`
	Oddyssey     string `toml:"oddyssey"`
}

// IngestorConfig holds fixture ingestion parameters.
type IngestorConfig struct {
	UpcomingCron     string `toml:"upcoming_cron"`      // default */15 * * * *
	LiveCron         string `toml:"live_cron"`          // default * * * * *
	UpcomingDays     int    `toml:"upcoming_days"`      // default 7
	LiveBeforeHours  int    `toml:"live_before_hours"`  // default 2
	LiveAfterHours   int    `toml:"live_after_hours"`   // default 3
	ArchivePayloads  bool   `toml:"archive_payloads"`
}

// SettlementConfig holds pool settlement parameters.
type SettlementConfig struct {
	TickSeconds         int `toml:"tick_seconds"`          // default 30
	BatchSize           int `toml:"batch_size"`            // default 50
	ArbitrationHours    int `toml:"arbitration_hours"`     // default 24
	BackoffBaseSeconds  int `toml:"backoff_base_seconds"`  // default 2
	BackoffCapSeconds   int `toml:"backoff_cap_seconds"`   // default 600
}

// Tick returns the settlement scan interval.
func (s SettlementConfig) Tick() time.Duration {
	if s.TickSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TickSeconds) * time.Second
}

// ArbitrationWindow is the delay after event end before an underivable pool
// is refunded.
func (s SettlementConfig) ArbitrationWindow() time.Duration {
	if s.ArbitrationHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.ArbitrationHours) * time.Hour
}

// OddysseyConfig holds cycle resolution parameters.
type OddysseyConfig struct {
	TickSeconds  int  `toml:"tick_seconds"`  // default 60
	MinCorrect   int  `toml:"min_correct"`   // default 7
	GraceHours   int  `toml:"grace_hours"`   // default 6
	AllowPartial bool `toml:"allow_partial"` // default true
}

// Tick returns the resolver scan interval.
func (o OddysseyConfig) Tick() time.Duration {
	if o.TickSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(o.TickSeconds) * time.Second
}

// Grace is the window after cycle end during which missing outcomes defer
// resolution instead of voiding markets.
func (o OddysseyConfig) Grace() time.Duration {
	if o.GraceHours <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(o.GraceHours) * time.Hour
}

// IndexerConfig holds chain indexing parameters.
type IndexerConfig struct {
	TickSeconds int    `toml:"tick_seconds"` // default 15
	BatchBlocks uint64 `toml:"batch_blocks"` // default 1000
	ReorgDepth  uint64 `toml:"reorg_depth"`  // default 12
	StartBlock  uint64 `toml:"start_block"`
}

// Tick returns the indexer scan interval.
func (i IndexerConfig) Tick() time.Duration {
	if i.TickSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(i.TickSeconds) * time.Second
}

// S3Config holds object storage parameters for raw payload archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Enabled reports whether archival is configured.
func (s S3Config) Enabled() bool { return s.Bucket != "" }

// NotifyConfig holds operator alert channels.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"`
}

// OpsConfig holds the health/metrics listener address.
type OpsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// Contracts returns the contract address row for the configured environment.
func (c *Config) ContractAddresses() (ContractsConfig, error) {
	row, ok := c.Contracts[c.Environment]
	if !ok {
		return ContractsConfig{}, fmt.Errorf("config: no contract addresses for environment %q", c.Environment)
	}
	return row, nil
}

// Validate enforces the fatal-config invariants shared by all binaries.
func (c *Config) Validate() error {
	var problems []string

	if c.Environment == "" {
		problems = append(problems, "environment is required")
	}
	if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Database == "") {
		problems = append(problems, "database.dsn or database.host+database.database is required")
	}
	if c.Chain.RPCURL == "" {
		problems = append(problems, "chain.rpc_url is required")
	}
	if c.Chain.ChainID == 0 {
		problems = append(problems, "chain.chain_id is required")
	}
	if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
		problems = append(problems, "chain.private_key or chain.encrypted_key_path is required")
	}
	if c.Chain.Confirmations < 1 {
		problems = append(problems, "chain.confirmations must be at least 1")
	}
	if c.Provider.BaseURL == "" {
		problems = append(problems, "provider.base_url is required")
	}
	if c.Provider.Token == "" {
		problems = append(problems, "provider.token is required")
	}
	if row, err := c.ContractAddresses(); err != nil {
		problems = append(problems, err.Error())
	} else {
		if row.PoolCore == "" || row.GuidedOracle == "" || row.Oddyssey == "" {
			problems = append(problems, fmt.Sprintf("contracts.%s must set pool_core, guided_oracle and oddyssey", c.Environment))
		}
	}
	if c.Indexer.ReorgDepth == 0 {
		problems = append(problems, "indexer.reorg_depth must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
