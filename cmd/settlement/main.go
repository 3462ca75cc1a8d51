// Command settlement settles prediction pools through the guided oracle
// relay once their event results are derived.
//
// Usage:
//
//	settlement [-config config.toml] run
//	settlement [-config config.toml] settle-pool <pool_id>
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
	os.Exit(cli.Main("settlement", os.Args[1:], run))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	deps, cleanup, err := app.Wire(ctx, cfg, "settlement", logger)
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
		return a.RunSettlement(ctx, deps)
	case "settle-pool":
		if len(args) != 2 {
			return fmt.Errorf("usage: settlement settle-pool <pool_id>")
		}
		poolID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("settlement: parse pool id %q: %w", args[1], err)
		}
		return a.SettlePool(ctx, deps, poolID)
	default:
		return fmt.Errorf("settlement: unknown command %q (want run or settle-pool)", command)
	}
}
