package commands

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GCCmd removes encrypted objects left behind by interrupted stores or
// failed deletes. The grace period protects stores still in flight.
type GCCmd struct {
	DryRun bool          `help:"List orphans without deleting them." name:"dry-run"`
	MinAge time.Duration `help:"Only collect orphans older than this." default:"15m" name:"min-age"`
}

func (c *GCCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, log, err := globals.loadConfig()
	if err != nil {
		return err
	}
	stack, err := buildImageStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Close()

	orphans, err := stack.images.CollectOrphans(ctx, c.MinAge, c.DryRun)
	for _, key := range orphans {
		fmt.Println(key)
	}
	if err != nil {
		return err
	}

	log.Info("orphan collection finished",
		zap.Int("orphans", len(orphans)),
		zap.Bool("dry_run", c.DryRun),
		zap.Duration("min_age", c.MinAge),
	)
	return nil
}
