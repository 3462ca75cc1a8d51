// Command ingestor polls the sports provider, upserts fixtures, and derives
// results for finished fixtures.
//
// Usage:
//
//	ingestor [-config config.toml] run
//	ingestor [-config config.toml] backfill <from> <to>   (dates as 2006-01-02)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bitredict/backend/internal/app"
	"github.com/bitredict/backend/internal/cli"
	"github.com/bitredict/backend/internal/config"
)

func main() {
	os.Exit(cli.Main("ingestor", os.Args[1:], run))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	deps, cleanup, err := app.Wire(ctx, cfg, "ingestor", logger)
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
		return a.RunIngestor(ctx, deps)
	case "backfill":
		if len(args) != 3 {
			return fmt.Errorf("usage: ingestor backfill <from> <to>")
		}
		from, err := time.Parse("2006-01-02", args[1])
		if err != nil {
			return fmt.Errorf("ingestor: parse from date %q: %w", args[1], err)
		}
		to, err := time.Parse("2006-01-02", args[2])
		if err != nil {
			return fmt.Errorf("ingestor: parse to date %q: %w", args[2], err)
		}
		if !to.After(from) {
			return fmt.Errorf("ingestor: backfill range %s..%s is empty", args[1], args[2])
		}
		return a.BackfillIngest(ctx, deps, from, to)
	default:
		return fmt.Errorf("ingestor: unknown command %q (want run or backfill)", command)
	}
}
