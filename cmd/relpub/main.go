package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/relpub/cmd/relpub/commands"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("relpub"),
		kong.Description("Publish JVM library releases to Maven-layout repositories."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	g := &commands.Global{Logger: slog.Default(), Stdout: os.Stdout, Stderr: os.Stderr}
	if err := parser.Run(g, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
