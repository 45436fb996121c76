package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/app"
	"git.home.luguber.info/inful/sitegen/internal/cache"
	"git.home.luguber.info/inful/sitegen/internal/eventstore"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// InspectCmd implements the 'inspect' command.
type InspectCmd struct {
	Runs int  `help:"Number of recent runs to show" default:"10"`
	JSON bool `help:"Print machine readable JSON"`
}

// InspectResult is the JSON shape of 'inspect --json'.
type InspectResult struct {
	Backend string                  `json:"backend"`
	Cache   cache.Stats             `json:"cache"`
	Runs    []eventstore.RunSummary `json:"runs,omitempty"`
}

func (i *InspectCmd) Run(g *Global, root *CLI) error {
	if i.Runs < 1 {
		return ferrors.ValidationError("--runs must be at least 1").
			WithContext("runs", i.Runs).
			Build()
	}
	cfg, err := root.LoadConfig(g)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := app.New(ctx, cfg, appOptions(g, true)...)
	if err != nil {
		return err
	}
	defer closeApp(g, a)

	stats, err := a.CacheStats(ctx)
	if err != nil {
		return err
	}
	runs, err := a.History(ctx, i.Runs)
	if err != nil {
		return err
	}
	res := InspectResult{Backend: string(cfg.Cache.Backend), Cache: stats, Runs: runs}
	if i.JSON {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printInspect(g.out(), res, cfg.Journal.Path != "")
}

func printInspect(w io.Writer, res InspectResult, journal bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "cache backend\t%s\n", res.Backend)
	_, _ = fmt.Fprintf(tw, "nodes\t%d\n", res.Cache.Nodes)
	_, _ = fmt.Fprintf(tw, "items\t%d\n", res.Cache.Items)
	_, _ = fmt.Fprintf(tw, "dependencies\t%d\n", res.Cache.Dependencies)
	for _, name := range slices.Sorted(maps.Keys(res.Cache.ByTracker)) {
		_, _ = fmt.Fprintf(tw, "  %s\t%d\n", name, res.Cache.ByTracker[name])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !journal {
		_, err := fmt.Fprintln(w, "\nno journal configured (journal.path)")
		return err
	}
	_, _ = fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tDURATION\tRENDERED\tSKIPPED\tFAILED")
	for _, r := range res.Runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.RunID, r.Status, r.StartedAt.Format(time.RFC3339),
			r.Duration.Truncate(time.Millisecond), r.Rendered, r.Skipped, r.Failed)
	}
	return tw.Flush()
}
