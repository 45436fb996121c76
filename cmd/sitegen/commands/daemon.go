package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitegen/internal/app"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/daemon"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Interval string `help:"Override daemon.interval (e.g. 10m)"`
	Listen   string `help:"Override metrics.listen (e.g. :9090)"`
	Watch    bool   `help:"Also regenerate when filesystem sources change"`
	NoNotify bool   `name:"no-notify" help:"Do not publish lifecycle events even when notify.url is set"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig(g)
	if err != nil {
		return err
	}
	if d.Interval != "" {
		cfg.Daemon.Interval = d.Interval
	}
	if d.Listen != "" {
		cfg.Metrics.Listen = d.Listen
	}
	if d.Watch {
		cfg.Daemon.Watch = true
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return runDaemon(g, cfg, d.NoNotify)
}

// WatchCmd implements the 'watch' command: a daemon driven by source
// changes only.
type WatchCmd struct {
	Output   string `short:"o" help:"Override output.directory" type:"path"`
	NoNotify bool   `name:"no-notify" help:"Do not publish lifecycle events even when notify.url is set"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig(g)
	if err != nil {
		return err
	}
	if w.Output != "" {
		cfg.Output.Directory = w.Output
	}
	cfg.Daemon.Watch = true
	cfg.Daemon.Interval = ""
	return runDaemon(g, cfg, w.NoNotify)
}

func runDaemon(g *Global, cfg *config.Config, noNotify bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appOptions(g, noNotify)...)
	if err != nil {
		return err
	}
	defer closeApp(g, a)

	opts := daemon.OptionsFor(cfg, a.Metrics, app.FSSourceDirs(cfg))
	return daemon.New(a, opts, g.Logger).Run(ctx)
}
