package config

// Defaults returns the built-in configuration defaults. Values here are the
// documented operational defaults; anything secret is left empty and must
// come from the TOML file or environment.
func Defaults() Config {
	return Config{
		Environment: "testnet",
		LogLevel:    "info",
		Database: DatabaseConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Provider: ProviderConfig{
			BaseURL:        "https://api.sportmonks.com/v3/football",
			TimeoutSeconds: 20,
			RatePerSecond:  3,
			RateBurst:      5,
		},
		Chain: ChainConfig{
			Confirmations:  2,
			GasLimit:       500_000,
			MaxFeeGwei:     100,
			MaxTipGwei:     2,
			ReadTimeoutSec: 10,
			SendTimeoutSec: 60,
		},
		Ingestor: IngestorConfig{
			UpcomingCron:    "*/15 * * * *",
			LiveCron:        "* * * * *",
			UpcomingDays:    7,
			LiveBeforeHours: 2,
			LiveAfterHours:  3,
		},
		Settlement: SettlementConfig{
			TickSeconds:        30,
			BatchSize:          50,
			ArbitrationHours:   24,
			BackoffBaseSeconds: 2,
			BackoffCapSeconds:  600,
		},
		Oddyssey: OddysseyConfig{
			TickSeconds:  60,
			MinCorrect:   7,
			GraceHours:   6,
			AllowPartial: true,
		},
		Indexer: IndexerConfig{
			TickSeconds: 15,
			BatchBlocks: 1000,
			ReorgDepth:  12,
		},
		Ops: OpsConfig{
			ListenAddr: ":9090",
		},
	}
}
