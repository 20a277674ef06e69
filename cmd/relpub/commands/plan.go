package commands

import (
	"context"

	"git.home.luguber.info/inful/relpub/internal/report"
)

// PlanCmd implements the 'plan' command.
type PlanCmd struct {
	SkipSigning bool   `name:"skip-signing" help:"Plan as if --skip-signing were passed to publish"`
	Format      string `name:"format" help:"Output format (text|json|markdown|html)" default:"text"`
}

func (p *PlanCmd) Run(g *Global, root *CLI) error {
	format, err := report.ParseFormat(p.Format)
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	plan, err := buildPlan(context.Background(), cfg, logger, p.SkipSigning)
	if err != nil {
		return err
	}
	return report.RenderPlan(g.out(), plan, format)
}
