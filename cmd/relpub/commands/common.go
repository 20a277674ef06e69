package commands

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/relpub/internal/artifacts"
	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/logfields"
	"git.home.luguber.info/inful/relpub/internal/publish"
	"git.home.luguber.info/inful/relpub/internal/router"
)

// loadConfig reads the descriptor named by -c and switches logging to its settings.
func loadConfig(g *Global, root *CLI) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, nil, err
	}
	logger := configureLogging(g, cfg.Monitoring.Logging, root.Verbose)
	logger.Debug("Descriptor loaded", logfields.Path(root.Config))
	return cfg, logger, nil
}

// buildPlan classifies the coordinate, assembles the artifact set and plans
// every routed destination. Nothing here touches the network.
func buildPlan(ctx context.Context, cfg *config.Config, logger *slog.Logger, skipSigning bool) (*publish.Plan, error) {
	coord, err := cfg.Coordinate.Resolve()
	if err != nil {
		return nil, err
	}
	logger.Info("Coordinate resolved",
		logfields.Coordinate(coord.String()),
		logfields.Classification(coord.Classification.String()))

	set, err := artifacts.NewBuilder(cfg.Project, logger).Build(ctx, coord,
		artifacts.InputsFromConfig(cfg.Artifacts),
		artifacts.InclusionFromConfig(cfg.Inclusion))
	if err != nil {
		return nil, err
	}

	routes, err := router.Route(coord, set, cfg.Destinations)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		logger.Warn("No destination has publish enabled")
	}

	return publish.NewPlanner(publish.PlanOptions{
		Checksums:   cfg.Checksums,
		SkipSigning: skipSigning,
	}).Plan(coord, set, routes)
}

// newResolver layers credential sources: -P flags over properties files,
// then the process environment, then dotenv files.
func newResolver(cfg *config.Config, logger *slog.Logger, assignments []string) (*credentials.Resolver, error) {
	overrides, err := credentials.ParseAssignments(assignments)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid -P property").
			WithHint("pass properties as -P key=value").
			Build()
	}
	props, missing, err := credentials.LoadProperties(cfg.PropertiesFiles, overrides)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load properties files").Build()
	}
	for _, m := range missing {
		logger.Debug("Properties file not found, skipping", logfields.Path(m))
	}

	dotenvFiles := cfg.DotenvFiles
	if len(dotenvFiles) == 0 {
		dotenvFiles = credentials.DefaultDotenvFiles
	}
	dotenv, err := credentials.LoadDotenv(dotenvFiles)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load dotenv files").Build()
	}

	return credentials.NewResolver(logger, props, credentials.NewEnvSource(), dotenv), nil
}
