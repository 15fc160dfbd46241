package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/mediapipe/internal/config"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
)

// Global is shared with every subcommand's Run method.
type Global struct {
	Ctx    context.Context
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition and global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"mediapipe.yaml" type:"path"`
	Verbose   bool             `short:"v" help:"Enable debug logging"`
	LogFormat string           `name:"log-format" help:"Log output format (text|json); overrides logging.format"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Process ProcessCmd `cmd:"" help:"Process documents once, rewriting them in place or into --out"`
	Watch   WatchCmd   `cmd:"" help:"Reprocess documents under a directory whenever they change"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	Cache   CacheCmd   `cmd:"" help:"Inspect or clear persisted cache categories"`

	logger *slog.Logger
}

// AfterApply runs after flag parsing and installs a bootstrap logger.
func (c *CLI) AfterApply() error {
	cfg := config.Default().Logging
	c.applyLogFlags(&cfg)
	c.logger = observability.NewLogger(os.Stderr, cfg, c.Verbose)
	slog.SetDefault(c.logger)
	return nil
}

// Logger returns the current CLI logger.
func (c *CLI) Logger() *slog.Logger {
	return observability.OrDefault(c.logger)
}

// LoadConfig reads the configuration file and reconfigures logging from it.
func (c *CLI) LoadConfig(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	c.applyLogFlags(&cfg.Logging)
	c.logger = observability.NewLogger(os.Stderr, cfg.Logging, c.Verbose)
	slog.SetDefault(c.logger)
	if g != nil {
		g.Logger = c.logger
	}
	return cfg, nil
}

func (c *CLI) applyLogFlags(l *config.LoggingConfig) {
	if c.LogFormat != "" {
		l.Format = c.LogFormat
	}
}
