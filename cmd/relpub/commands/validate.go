package commands

import (
	"fmt"
)

// ValidateCmd implements the 'validate' command.
type ValidateCmd struct{}

func (v *ValidateCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	coord, err := cfg.Coordinate.Resolve()
	if err != nil {
		return err
	}
	active := 0
	for _, d := range cfg.Destinations {
		if d.Publish {
			active++
		}
	}
	_, err = fmt.Fprintf(g.out(), "%s is valid: %s (%s), %d of %d destinations enabled\n",
		root.Config, coord, coord.Classification, active, len(cfg.Destinations))
	return err
}
