package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/relpub/internal/config"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/ledger"
	"git.home.luguber.info/inful/relpub/internal/logfields"
	"git.home.luguber.info/inful/relpub/internal/report"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Version string `arg:"" optional:"" help:"Only list entries for this version"`
	Format  string `name:"format" help:"Output format (text|json|markdown|html)" default:"text"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	format, err := report.ParseFormat(h.Format)
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if cfg.Ledger.Disabled {
		return ferrors.ConfigError("the ledger is disabled").
			WithHint("set ledger.disabled to false to record publications").
			Build()
	}

	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("Failed to close ledger", logfields.Error(cerr))
		}
	}()

	ctx := context.Background()
	entries, err := store.History(ctx, cfg.Coordinate.GroupID, cfg.Coordinate.ArtifactID, h.Version)
	if err != nil {
		return err
	}
	if err := report.RenderHistory(g.out(), entries, format); err != nil {
		return err
	}
	if format == report.FormatText {
		return printLatest(ctx, g, store, cfg.Coordinate)
	}
	return nil
}

func printLatest(ctx context.Context, g *Global, store *ledger.Store, c config.CoordinateConfig) error {
	latest, ok, err := store.LatestRelease(ctx, c.GroupID, c.ArtifactID)
	if err != nil || !ok {
		return err
	}
	_, err = fmt.Fprintf(g.out(), "Latest release: %s\n", latest)
	return err
}
