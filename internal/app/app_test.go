package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func loadConfig(t *testing.T, dir, content string) *config.Config {
	t.Helper()
	path := filepath.Join(dir, "sitegen.yaml")
	writeFile(t, path, content)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestAppBuildsSiteAndJournalsRuns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "site", "index.md"), "# Home\n")
	cfg := loadConfig(t, dir, `
sources:
  - path: site
cache:
  backend: sqlite
journal:
  path: .sitegen/journal.db
`)
	ctx := context.Background()

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	report, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/index.html"}, report.Rendered)

	out, err := os.ReadFile(filepath.Join(dir, "public", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "<h1>Home</h1>")

	stats, err := a.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Nodes)

	runs, err := a.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].RunID)
	assert.True(t, runs[0].IsSuccess())
	require.NoError(t, a.Close())

	a, err = New(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	report, err = a.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/index.html"}, report.Skipped, "the cache survives a restart")
}

func TestAppWithoutJournalHasNoHistory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "site", "a.txt"), "a")
	cfg := loadConfig(t, dir, "sources:\n  - path: site\ncache:\n  backend: none\n")

	a, err := New(context.Background(), cfg, WithoutNotifications())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	assert.Nil(t, a.Journal)
	runs, err := a.History(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestProviderStacksMounts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base", "index.md"), "# Home\n")
	writeFile(t, filepath.Join(dir, "guide", "content", "start.md"), "# Start\n")
	cfg := loadConfig(t, dir, `
sources:
  - path: base
  - name: guide
    path: guide
    mount_point: /guide/
    strip_prefix: /content/
`)

	p, err := Provider(cfg)
	require.NoError(t, err)
	_, stacked := p.(*source.Stacked)
	assert.True(t, stacked)

	paths, err := p.Paths(context.Background())
	require.NoError(t, err)
	assert.Contains(t, paths, "/index.md")
	assert.Contains(t, paths, "/guide/start.md")
	assert.Equal(t, []string{filepath.Join(dir, "base"), filepath.Join(dir, "guide")}, FSSourceDirs(cfg))
}

func TestProviderOpensGitRepository(t *testing.T) {
	dir := t.TempDir()
	repoDir := filepath.Join(dir, "repo")
	repo, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)
	writeFile(t, filepath.Join(repoDir, "README.md"), "# Readme\n")
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.org", When: time.Now()},
	})
	require.NoError(t, err)

	cfg := loadConfig(t, dir, "sources:\n  - type: git\n    path: repo\n")
	p, err := Provider(cfg)
	require.NoError(t, err)
	_, isGit := p.(*source.GitProvider)
	require.True(t, isGit)

	paths, err := p.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/README.md"}, paths)
	assert.Empty(t, FSSourceDirs(cfg))
}

func TestProviderRejectsMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "sources:\n  - path: nowhere\n")
	_, err := Provider(cfg)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategorySource))

	_, err = New(context.Background(), cfg)
	require.Error(t, err)
}

func TestCacheBackendSelection(t *testing.T) {
	dir := t.TempDir()

	b, err := CacheBackend(config.CacheConfig{Backend: config.CacheNone})
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryBackend{}, b)

	b, err = CacheBackend(config.CacheConfig{Backend: config.CacheFS, Path: filepath.Join(dir, "a", "cache.msgpack")})
	require.NoError(t, err)
	assert.Equal(t, "fs", b.Name())
	require.NoError(t, b.Write(context.Background(), []byte("blob")))
	data, err := os.ReadFile(filepath.Join(dir, "a", "cache.msgpack"))
	require.NoError(t, err)
	assert.Equal(t, "blob", string(data))

	b, err = CacheBackend(config.CacheConfig{Backend: config.CacheSQLite, Path: filepath.Join(dir, "b", "cache.db")})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", b.Name())
	require.NoError(t, b.Close())
}
