// Package commands implements the sitegen command line.
package commands

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitegen/internal/config"
)

// DefaultConfigFile is loaded when --config is not given and the file exists
// in the working directory.
const DefaultConfigFile = "sitegen.yaml"

// Global carries state shared by every command.
type Global struct {
	Logger *slog.Logger
	// Stdout receives user-facing output; nil means os.Stdout.
	Stdout io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// CLI definition and global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path (default: ./sitegen.yaml when present)" type:"path"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format (text|json); overrides logging.format"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build      BuildCmd   `cmd:"" help:"Generate the site once"`
	Watch      WatchCmd   `cmd:"" help:"Generate the site and regenerate whenever sources change"`
	Daemon     DaemonCmd  `cmd:"" help:"Keep the site current on a schedule and serve metrics"`
	Inspect    InspectCmd `cmd:"" help:"Show cache statistics and recent runs"`
	VersionCmd VersionCmd `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply configures logging from the flags once they are parsed.
func (c *CLI) AfterApply(g *Global) error {
	g.Logger = c.logger(config.LoggingConfig{})
	slog.SetDefault(g.Logger)
	return nil
}

// logger builds the process logger. Flags take precedence over the
// logging section of the configuration.
func (c *CLI) logger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch config.NormalizeLogLevel(string(lc.Level)) {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	if c.Verbose {
		level = slog.LevelDebug
	}

	format := lc.Format
	if c.LogFormat != "" {
		format = config.NormalizeLogFormat(c.LogFormat)
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// LoadConfig loads the configuration selected by --config, falling back to
// ./sitegen.yaml and then to defaults for the working directory. The
// process logger is reconfigured from the loaded logging section.
func (c *CLI) LoadConfig(g *Global) (*config.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	g.Logger = c.logger(cfg.Logging)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func (c *CLI) loadConfig() (*config.Config, error) {
	if c.Config != "" {
		return config.Load(c.Config)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	candidate := filepath.Join(wd, DefaultConfigFile)
	if _, err := os.Stat(candidate); err == nil {
		return config.Load(candidate)
	}
	return config.Default(wd)
}
