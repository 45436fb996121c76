package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitegen/internal/app"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/generator"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output   string `short:"o" help:"Override output.directory" type:"path"`
	NoNotify bool   `name:"no-notify" help:"Do not publish lifecycle events even when notify.url is set"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig(g)
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Output.Directory = b.Output
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := RunBuild(ctx, g, cfg, b.NoNotify)
	if err != nil {
		return err
	}
	printReport(g.out(), report)
	return report.Err()
}

// RunBuild assembles the application for cfg and performs one run.
func RunBuild(ctx context.Context, g *Global, cfg *config.Config, noNotify bool) (*generator.Report, error) {
	a, err := app.New(ctx, cfg, appOptions(g, noNotify)...)
	if err != nil {
		return nil, err
	}
	defer closeApp(g, a)
	return a.Run(ctx)
}

func appOptions(g *Global, noNotify bool) []app.Option {
	opts := []app.Option{app.WithLogger(g.Logger)}
	if noNotify {
		opts = append(opts, app.WithoutNotifications())
	}
	return opts
}

func closeApp(g *Global, a *app.App) {
	if err := a.Close(); err != nil {
		g.Logger.Warn("Failed to release resources", logfields.Error(err))
	}
}

func printReport(w io.Writer, r *generator.Report) {
	_, _ = fmt.Fprintln(w, r.Summary())
	for _, f := range r.Failed {
		_, _ = fmt.Fprintf(w, "  failed  %s: %v\n", f.ALCN, f.Err)
	}
	for _, f := range r.Invalid {
		_, _ = fmt.Fprintf(w, "  invalid %s: %v\n", f.Raw, f.Err)
	}
}
