// Command indexer projects PoolCore, GuidedOracle and Oddyssey contract
// events into the store.
//
// Usage:
//
//	indexer [-config config.toml] run
//	indexer [-config config.toml] rescan <from_block>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/bitredict/backend/internal/app"
	"github.com/bitredict/backend/internal/cli"
	"github.com/bitredict/backend/internal/config"
)

func main() {
	os.Exit(cli.Main("indexer", os.Args[1:], run))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	deps, cleanup, err := app.Wire(ctx, cfg, "indexer", logger)
	if err != nil {
		return err
	}
	defer cleanup()

	a := app.New(cfg, logger)

	command := "run"
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case "run":
		return a.RunIndexer(ctx, deps)
	case "rescan":
		if len(args) != 2 {
			return fmt.Errorf("usage: indexer rescan <from_block>")
		}
		fromBlock, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("indexer: parse from block %q: %w", args[1], err)
		}
		return a.RescanFrom(ctx, deps, fromBlock)
	default:
		return fmt.Errorf("indexer: unknown command %q (want run or rescan)", command)
	}
}
