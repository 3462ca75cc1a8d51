package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BITREDICT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BITREDICT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Environment, "BITREDICT_ENVIRONMENT")
	setStr(&cfg.LogLevel, "BITREDICT_LOG_LEVEL")

	// ── Database ──
	setStr(&cfg.Database.DSN, "BITREDICT_DATABASE_URL")
	setStr(&cfg.Database.Host, "BITREDICT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "BITREDICT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "BITREDICT_DATABASE_NAME")
	setStr(&cfg.Database.User, "BITREDICT_DATABASE_USER")
	setStr(&cfg.Database.Password, "BITREDICT_DATABASE_PASSWORD")
	setBool(&cfg.Database.RunMigrations, "BITREDICT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BITREDICT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BITREDICT_REDIS_PASSWORD")

	// ── Provider ──
	setStr(&cfg.Provider.BaseURL, "BITREDICT_PROVIDER_BASE_URL")
	setStr(&cfg.Provider.Token, "BITREDICT_PROVIDER_TOKEN")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "BITREDICT_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "BITREDICT_CHAIN_ID")
	setStr(&cfg.Chain.PrivateKey, "BITREDICT_SIGNER_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "BITREDICT_SIGNER_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "BITREDICT_SIGNER_KEY_PASSWORD")
	setUint64(&cfg.Chain.Confirmations, "BITREDICT_CONFIRMATIONS")

	// ── Oddyssey ──
	setInt(&cfg.Oddyssey.GraceHours, "BITREDICT_GRACE_HOURS")

	// ── S3 ──
	setStr(&cfg.S3.AccessKey, "BITREDICT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BITREDICT_S3_SECRET_KEY")
	setStr(&cfg.S3.Bucket, "BITREDICT_S3_BUCKET")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BITREDICT_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BITREDICT_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "BITREDICT_DISCORD_WEBHOOK")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
