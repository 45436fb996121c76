package commands

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	var out bytes.Buffer
	g := &Global{Logger: slog.Default(), Stdout: &out}
	parser, err := kong.New(&cli,
		kong.Name("sitegen"),
		kong.Vars{"version": "test"},
		kong.Bind(g),
		kong.Exit(func(int) { t.Fatal("unexpected exit") }),
	)
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	err = ctx.Run(g, &cli)
	return out.String(), err
}

func writeSite(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "site", "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site", "index.md"), []byte("# Hello\n\n[Intro](docs/intro.md)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site", "docs", "intro.md"), []byte("# Intro\n"), 0o644))
	cfg := "sources:\n  - path: site\njournal:\n  path: .sitegen/journal.db\n" + extra
	path := filepath.Join(dir, "sitegen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestBuildCommand(t *testing.T) {
	cfgPath := writeSite(t, "")
	out, err := run(t, "--config", cfgPath, "build")
	require.NoError(t, err)
	assert.Contains(t, out, "rendered=2")
	assert.Contains(t, out, "outcome=success")

	index, err := os.ReadFile(filepath.Join(filepath.Dir(cfgPath), "public", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), `href="docs/intro.html"`)

	out, err = run(t, "--config", cfgPath, "build")
	require.NoError(t, err)
	assert.Contains(t, out, "rendered=0 skipped=2")
}

func TestBuildOutputOverride(t *testing.T) {
	cfgPath := writeSite(t, "")
	target := filepath.Join(t.TempDir(), "out")
	_, err := run(t, "--config", cfgPath, "build", "--output", target)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(target, "docs", "intro.html"))
}

func TestBuildMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestInspectCommand(t *testing.T) {
	cfgPath := writeSite(t, "")
	_, err := run(t, "--config", cfgPath, "build")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "inspect", "--json")
	require.NoError(t, err)
	var res InspectResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, string(config.CacheFS), res.Backend)
	assert.Equal(t, 2, res.Cache.Nodes)
	require.Len(t, res.Runs, 1)
	assert.Equal(t, "success", res.Runs[0].Status)
	assert.Equal(t, 2, res.Runs[0].Rendered)

	out, err = run(t, "--config", cfgPath, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "cache backend")
	assert.Contains(t, out, res.Runs[0].RunID)
}

func TestInspectRejectsRunCount(t *testing.T) {
	_, err := run(t, "inspect", "--runs", "0")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	assert.Equal(t, 2, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sitegen ")
}

func TestLoggerHonorsFlagsOverConfig(t *testing.T) {
	cli := &CLI{Verbose: true, LogFormat: "json"}
	l := cli.logger(config.LoggingConfig{Level: config.LogLevelError, Format: config.LogFormatText})
	assert.True(t, l.Enabled(t.Context(), slog.LevelDebug))
	_, ok := l.Handler().(*slog.JSONHandler)
	assert.True(t, ok)

	cli = &CLI{}
	l = cli.logger(config.LoggingConfig{Level: config.LogLevelWarn})
	assert.False(t, l.Enabled(t.Context(), slog.LevelInfo))
	_, ok = l.Handler().(*slog.TextHandler)
	assert.True(t, ok)
}
