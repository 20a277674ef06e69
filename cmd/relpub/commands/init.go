package commands

import (
	"fmt"
	"io"
	"log/slog"

	"git.home.luguber.info/inful/relpub/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing descriptor"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	return RunInit(g.out(), root.Config, i.Force)
}

func RunInit(w io.Writer, configPath string, force bool) error {
	slog.Info("Initializing descriptor", "path", configPath, "force", force)
	if err := config.Init(configPath, force); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Wrote example descriptor to %s\n", configPath)
	return err
}
