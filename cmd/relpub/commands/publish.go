package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
	"git.home.luguber.info/inful/relpub/internal/ledger"
	"git.home.luguber.info/inful/relpub/internal/logfields"
	"git.home.luguber.info/inful/relpub/internal/metrics"
	"git.home.luguber.info/inful/relpub/internal/notify"
	"git.home.luguber.info/inful/relpub/internal/publish"
	"git.home.luguber.info/inful/relpub/internal/report"
	"git.home.luguber.info/inful/relpub/internal/retry"
	"git.home.luguber.info/inful/relpub/internal/signing"
)

// PublishCmd implements the 'publish' command.
type PublishCmd struct {
	Properties     []string `short:"P" name:"property" help:"Project property key=value (repeatable); wins over properties files and the environment"`
	AllowOverwrite bool     `name:"allow-overwrite" help:"Allow re-publishing a release version that already exists"`
	SkipSigning    bool     `name:"skip-signing" help:"Do not sign; destinations that require signing are published but not counted"`
	ReportFormat   string   `name:"report-format" help:"Report format (text|json|markdown|html)" default:"text"`
	ReportFile     string   `name:"report-file" help:"Write the report to this file instead of stdout" type:"path"`
}

func (p *PublishCmd) Run(g *Global, root *CLI) error {
	format, err := report.ParseFormat(p.ReportFormat)
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig(g, root)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := p.publish(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := p.writeReport(g.out(), res, format); err != nil {
		logger.Error("Failed to write report", logfields.Error(err))
	}
	notifyResult(ctx, cfg.Notify, logger, res)
	return res.Err()
}

func (p *PublishCmd) publish(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*publish.Result, error) {
	plan, err := buildPlan(ctx, cfg, logger, p.SkipSigning)
	if err != nil {
		return nil, err
	}
	resolver, err := newResolver(cfg, logger, p.Properties)
	if err != nil {
		return nil, err
	}
	policy := retry.FromConfig(cfg.Execution)
	if err := policy.Validate(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid retry settings").
			WithHint("check execution.retry_initial_delay and execution.retry_max_delay").
			Build()
	}

	var store publish.Ledger
	if !cfg.Ledger.Disabled {
		s, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		defer func() {
			if cerr := s.Close(); cerr != nil {
				logger.Warn("Failed to close ledger", logfields.Error(cerr))
			}
		}()
		store = s
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var prom *metrics.PrometheusRecorder
	if cfg.Monitoring.MetricsFile != "" {
		prom = metrics.NewPrometheusRecorder(nil)
		recorder = prom
	}

	exec := publish.NewExecutor(publish.Options{
		Resolver:       resolver,
		Signer:         signerFunc(resolver, cfg.Signing),
		Ledger:         store,
		Recorder:       recorder,
		Logger:         logger,
		Policy:         policy,
		Concurrency:    cfg.Execution.Concurrency,
		UploadTimeout:  cfg.Execution.UploadTimeoutDuration(),
		SigningTimeout: cfg.Execution.SigningTimeoutDuration(),
		AllowOverwrite: p.AllowOverwrite,
	})
	res := exec.Execute(ctx, plan)

	if prom != nil {
		if err := metrics.WriteTextfile(prom.Registry(), cfg.Monitoring.MetricsFile); err != nil {
			logger.Warn("Failed to write metrics file", logfields.Path(cfg.Monitoring.MetricsFile), logfields.Error(err))
		}
	}
	return res, nil
}

// signerFunc defers key loading until a destination actually needs to sign.
func signerFunc(resolver *credentials.Resolver, cfg config.SigningConfig) publish.SignerFunc {
	if cfg.KeyFile == "" && cfg.KeyKey == "" {
		return nil
	}
	return func() (*signing.Signer, error) {
		set, err := resolver.ResolveSigning(cfg)
		if err != nil {
			return nil, err
		}
		return signing.NewSigner(set)
	}
}

func (p *PublishCmd) writeReport(stdout io.Writer, res *publish.Result, format report.Format) error {
	if p.ReportFile == "" {
		return report.Render(stdout, res, format)
	}
	if err := os.MkdirAll(filepath.Dir(p.ReportFile), 0o750); err != nil {
		return ferrors.FileSystemError("cannot create report directory").WithCause(err).Build()
	}
	f, err := os.Create(p.ReportFile)
	if err != nil {
		return ferrors.FileSystemError("cannot create report file").WithCause(err).
			WithContext("path", p.ReportFile).
			Build()
	}
	if err := report.Render(f, res, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// notifyResult publishes the run event. Notification failures never change
// the exit code.
func notifyResult(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger, res *publish.Result) {
	n, err := notify.New(cfg, logger)
	if err != nil {
		logger.Warn("Notifications unavailable", logfields.Error(err))
		return
	}
	defer func() { _ = n.Close() }()
	if err := n.Notify(context.WithoutCancel(ctx), res); err != nil {
		logger.Warn("Failed to publish run event", logfields.Error(err))
	}
}
