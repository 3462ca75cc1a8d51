// Command resolver scores Oddyssey slips and resolves daily cycles
// on-chain once their matches finish.
//
// Usage:
//
//	resolver [-config config.toml] run
//	resolver [-config config.toml] resolve-cycle <cycle_id>
//	resolver [-config config.toml] reevaluate <cycle_id>
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
	os.Exit(cli.Main("resolver", os.Args[1:], run))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	deps, cleanup, err := app.Wire(ctx, cfg, "resolver", logger)
	if err != nil {
		return err
	}
	defer cleanup()

	a := app.New(cfg, logger)

	command := "run"
	if len(args) > 0 {
		command = args[0]
	}

	var cycleID uint64
	if command == "resolve-cycle" || command == "reevaluate" {
		if len(args) != 2 {
			return fmt.Errorf("usage: resolver %s <cycle_id>", command)
		}
		cycleID, err = strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("resolver: parse cycle id %q: %w", args[1], err)
		}
	}

	switch command {
	case "run":
		return a.RunResolver(ctx, deps)
	case "resolve-cycle":
		return a.ResolveCycle(ctx, deps, cycleID)
	case "reevaluate":
		return a.ReevaluateCycle(ctx, deps, cycleID)
	default:
		return fmt.Errorf("resolver: unknown command %q (want run, resolve-cycle or reevaluate)", command)
	}
}
