package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"gatehouse-backend/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		ConfigDir []string         `help:"Extra directories searched for config.yaml." name:"config-dir"`
		Version   kong.VersionFlag `help:"Print version and exit."`

		Serve commands.ServeCmd `cmd:"" default:"1" help:"Run the gatehouse capture API."`
		Stats commands.StatsCmd `cmd:"" help:"Print image storage statistics."`
		GC    commands.GCCmd    `cmd:"" name:"gc" help:"Remove encrypted images that have no metadata record."`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("gatehouse"),
		kong.Description("Gatehouse visitor capture service."),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := cmd.Run(&commands.Globals{ConfigDirs: cli.ConfigDir, Version: version})
	cmd.FatalIfErrorf(err)
}
