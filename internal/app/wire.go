package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/bitredict/backend/internal/blob/s3"
	rediscache "github.com/bitredict/backend/internal/cache/redis"
	"github.com/bitredict/backend/internal/chain"
	"github.com/bitredict/backend/internal/chain/contracts"
	"github.com/bitredict/backend/internal/cli"
	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/notify"
	"github.com/bitredict/backend/internal/provider/sportmonks"
	"github.com/bitredict/backend/internal/store/postgres"
)

// Dependencies bundles everything the component run modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Fixtures domain.FixtureStore
	Results  domain.ResultStore
	Pools    domain.PoolStore
	Bets     domain.BetStore
	Cycles   domain.CycleStore
	Slips    domain.SlipStore
	Evals    domain.EvaluationStore
	Audits   domain.AuditStore
	Cursors  domain.CursorStore
	Locks    domain.LockManager

	// Chain
	Chain    *chain.Client
	Tx       *chain.TxManager
	Oracle   *contracts.GuidedOracle
	PoolCore *contracts.PoolCore
	Oddyssey *contracts.Oddyssey

	PoolCoreAddr common.Address
	OracleAddr   common.Address
	OddysseyAddr common.Address

	// Ingest plane
	Provider     *sportmonks.Client
	FixtureCache *rediscache.FixtureCache
	Archiver     *s3blob.PayloadArchiver

	// Operator plane
	Notifier *notify.Notifier
	Health   func(context.Context) error
}

// needsChain reports whether the component reads from the RPC endpoint.
func needsChain(component string) bool {
	switch component {
	case "settlement", "resolver", "indexer":
		return true
	default:
		return false
	}
}

// needsSigner reports whether the component submits transactions.
func needsSigner(component string) bool {
	switch component {
	case "settlement", "resolver":
		return true
	default:
		return false
	}
}

// Wire constructs the concrete dependencies for one component and returns
// them with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, component string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every component persists through the oracle schema) ---
	pgClient, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		cleanup()
		return nil, nil, cli.DatabaseUnavailable(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, domain.FatalConfig(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}

	pool := pgClient.Pool()
	deps.Fixtures = postgres.NewFixtureStore(pool)
	deps.Results = postgres.NewResultStore(pool)
	deps.Pools = postgres.NewPoolStore(pool)
	deps.Bets = postgres.NewBetStore(pool)
	deps.Cycles = postgres.NewCycleStore(pool)
	deps.Slips = postgres.NewSlipStore(pool)
	deps.Evals = postgres.NewEvaluationStore(pool)
	deps.Audits = postgres.NewAuditStore(pool)
	deps.Cursors = postgres.NewCursorStore(pool)
	deps.Locks = postgres.NewLockManager(pool)
	deps.Health = pool.Ping

	// --- Contract addresses for the configured environment ---
	addrs, err := cfg.ContractAddresses()
	if err != nil {
		cleanup()
		return nil, nil, domain.FatalConfig(err)
	}
	deps.PoolCoreAddr, err = parseAddress("pool_core", addrs.PoolCore)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.OracleAddr, err = parseAddress("guided_oracle", addrs.GuidedOracle)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.OddysseyAddr, err = parseAddress("oddyssey", addrs.Oddyssey)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Chain RPC ---
	if needsChain(component) {
		chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID, cfg.Chain.ReadTimeout(), logger)
		if err != nil {
			cleanup()
			if domain.ClassOf(err) == domain.ClassFatalConfig {
				return nil, nil, err
			}
			return nil, nil, cli.ChainUnavailable(fmt.Errorf("wire: chain: %w", err))
		}
		closers = append(closers, chainClient.Close)
		deps.Chain = chainClient

		deps.Oracle = contracts.NewGuidedOracle(deps.OracleAddr, chainClient)
		deps.PoolCore = contracts.NewPoolCore(deps.PoolCoreAddr, chainClient)
		deps.Oddyssey = contracts.NewOddyssey(deps.OddysseyAddr, chainClient)

		if needsSigner(component) {
			key, err := chain.LoadKey(chain.KeyConfig{
				RawPrivateKey:    cfg.Chain.PrivateKey,
				EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
				KeyPassword:      cfg.Chain.KeyPassword,
			})
			if err != nil {
				cleanup()
				return nil, nil, domain.FatalConfig(fmt.Errorf("wire: signer key: %w", err))
			}
			deps.Tx = chain.NewTxManager(chainClient, key, cfg.Chain.ChainID, chain.TxPolicy{
				GasLimit:      cfg.Chain.GasLimit,
				MaxFeeWei:     gweiToWei(cfg.Chain.MaxFeeGwei),
				MaxTipWei:     gweiToWei(cfg.Chain.MaxTipGwei),
				Confirmations: cfg.Chain.Confirmations,
				SendTimeout:   cfg.Chain.SendTimeout(),
			}, logger)
		}
	}

	// --- Sports provider + ingest-side caches (ingestor only) ---
	if component == "ingestor" {
		deps.Provider = sportmonks.New(
			cfg.Provider.BaseURL,
			cfg.Provider.Token,
			cfg.Provider.Timeout(),
			cfg.Provider.RatePerSecond,
			cfg.Provider.RateBurst,
			logger,
		)

		// The snapshot cache only suppresses redundant writes; a missing
		// Redis degrades to write-through rather than failing startup.
		if cfg.Redis.Addr != "" {
			redisClient, err := rediscache.New(ctx, cfg.Redis)
			if err != nil {
				logger.WarnContext(ctx, "redis unavailable, live snapshot cache disabled",
					slog.String("addr", cfg.Redis.Addr),
					slog.String("error", err.Error()),
				)
			} else {
				closers = append(closers, func() { _ = redisClient.Close() })
				deps.FixtureCache = rediscache.NewFixtureCache(redisClient)
			}
		}

		if cfg.S3.Enabled() {
			s3Client, err := s3blob.New(ctx, cfg.S3)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: s3: %w", err)
			}
			deps.Archiver = s3blob.NewPayloadArchiver(s3Client)
		}
	}

	// --- Operator alerts ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

func parseAddress(name, hex string) (common.Address, error) {
	if !common.IsHexAddress(hex) {
		return common.Address{}, domain.FatalConfig(fmt.Errorf("wire: contracts.%s address %q is not a valid address", name, hex))
	}
	return common.HexToAddress(hex), nil
}

func gweiToWei(gwei int64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	return new(big.Int).Mul(big.NewInt(gwei), big.NewInt(1_000_000_000))
}
