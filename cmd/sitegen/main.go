package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitegen/cmd/sitegen/commands"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/version"
)

func main() {
	var cli commands.CLI
	globals := &commands.Global{Logger: slog.Default()}
	ctx := kong.Parse(&cli,
		kong.Name("sitegen"),
		kong.Description("Incremental static site generator"),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
		kong.Bind(globals),
	)

	if err := ctx.Run(globals, &cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, globals.Logger).HandleError(err)
	}
	os.Exit(0)
}
