package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/relpub/internal/config"
)

// Global is shared state bound into every command's Run method.
type Global struct {
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Global) errOut() io.Writer {
	if g == nil || g.Stderr == nil {
		return os.Stderr
	}
	return g.Stderr
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Release descriptor path" default:"relpub.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Publish  PublishCmd  `cmd:"" help:"Build the artifact set and publish it to every enabled destination"`
	Plan     PlanCmd     `cmd:"" help:"Print the publication plan without network access or signing"`
	Validate ValidateCmd `cmd:"" help:"Load and validate the release descriptor"`
	Init     InitCmd     `cmd:"" help:"Write an example release descriptor"`
	History  HistoryCmd  `cmd:"" help:"List recorded publications from the ledger"`
}

// AfterApply runs after flag parsing; it installs the bootstrap logger used
// until the descriptor's logging settings are known.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := config.LogLevelInfo
	if c.Verbose {
		level = config.LogLevelDebug
	}
	slog.SetDefault(newLogger(os.Stderr, level, config.NormalizeLogFormat(os.Getenv("RELPUB_LOG_FORMAT"))))
	return nil
}

// configureLogging replaces the default logger with one following the
// descriptor. --verbose always wins over the configured level.
func configureLogging(g *Global, cfg config.LoggingConfig, verbose bool) *slog.Logger {
	level := config.NormalizeLogLevel(string(cfg.Level))
	if verbose {
		level = config.LogLevelDebug
	}
	logger := newLogger(g.errOut(), level, config.NormalizeLogFormat(string(cfg.Format)))
	slog.SetDefault(logger)
	if g != nil {
		g.Logger = logger
	}
	return logger
}

func newLogger(w io.Writer, level config.LogLevel, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func slogLevel(l config.LogLevel) slog.Level {
	switch config.LogLevel(strings.ToLower(string(l))) {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
