package commands

import (
	"context"
	"encoding/json"
	"os"
)

type StatsCmd struct{}

// Run prints the storage statistics as JSON.
func (c *StatsCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, log, err := globals.loadConfig()
	if err != nil {
		return err
	}
	stack, err := buildImageStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Close()

	stats, err := stack.images.GetStorageStats(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
