package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "sitegen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, dir, `
sources:
  - path: content
`))
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 1)
	src := cfg.Sources[0]
	assert.Equal(t, "fs-0", src.Name)
	assert.Equal(t, SourceFS, src.Type)
	assert.Equal(t, filepath.Join(dir, "content"), src.Path)
	assert.Equal(t, "/", src.MountPoint)
	assert.Equal(t, "/", src.Strip)

	assert.Equal(t, filepath.Join(dir, "public"), cfg.Output.Directory)
	assert.Equal(t, CacheFS, cfg.Cache.Backend)
	assert.Equal(t, filepath.Join(dir, ".sitegen/cache.msgpack"), cfg.Cache.Path)
	assert.Equal(t, "default", cfg.Generation.DefaultVersion)
	assert.Equal(t, runtime.NumCPU(), cfg.Generation.Concurrency)
	assert.Equal(t, DefaultDestTemplate, cfg.Generation.DestTemplate)
	require.NotNil(t, cfg.Generation.Markdown.GFM)
	assert.True(t, *cfg.Generation.Markdown.GFM)
	assert.Equal(t, "sitegen", cfg.Notify.SubjectPrefix)
	assert.False(t, cfg.Notify.Enabled())
	assert.Equal(t, 500*time.Millisecond, cfg.Daemon.DebounceDuration())
	assert.Zero(t, cfg.Daemon.IntervalDuration())
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
	assert.Equal(t, dir, cfg.BaseDir())
}

func TestLoadFullConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, dir, `
sources:
  - name: docs
    type: GIT
    path: /srv/docs.git
    mount_point: /docs/
    strip_prefix: /content/
    exclude: ["**/drafts/"]
output:
  directory: /var/www/site
cache:
  backend: sqlite
generation:
  default_version: "1.0"
  default_language: en
  concurrency: 3
  pipelines:
    - pattern: "**/*.md"
      pipeline: markdown, links
  markdown:
    gfm: false
extensions:
  params:
    markdown:
      unsafe: true
  disabled_trackers: [file]
notify:
  url: nats://localhost:4222
  stream: SITEGEN
daemon:
  interval: 10m
  watch: true
journal:
  path: journal.db
logging:
  level: DEBUG
  format: json
`))
	require.NoError(t, err)

	src := cfg.Sources[0]
	assert.Equal(t, SourceGit, src.Type)
	assert.Equal(t, "HEAD", src.Revision)
	assert.Equal(t, "/srv/docs.git", src.Path)
	assert.Equal(t, "/docs/", src.MountPoint)
	assert.Equal(t, []string{"**/drafts/"}, src.Exclude)

	assert.Equal(t, "/var/www/site", cfg.Output.Directory)
	assert.Equal(t, filepath.Join(dir, ".sitegen/cache.db"), cfg.Cache.Path)
	assert.Equal(t, 3, cfg.Generation.Concurrency)
	assert.Equal(t, []PipelineRule{{Pattern: "**/*.md", Pipeline: "markdown, links"}}, cfg.Generation.Pipelines)
	assert.False(t, *cfg.Generation.Markdown.GFM)
	assert.Equal(t, true, cfg.Extensions.Params["markdown"]["unsafe"])
	assert.Equal(t, []string{"file"}, cfg.Extensions.DisabledTrackers)
	assert.True(t, cfg.Notify.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.Daemon.IntervalDuration())
	assert.Equal(t, filepath.Join(dir, "journal.db"), cfg.Journal.Path)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestLoadExpandsEnvironmentFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	for _, key := range []string{"SITEGEN_TEST_OUT", "SITEGEN_TEST_SRC"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SITEGEN_TEST_OUT=from-env\nSITEGEN_TEST_SRC=src\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("SITEGEN_TEST_OUT=from-local\n"), 0o600))

	cfg, err := Load(writeConfig(t, dir, `
sources:
  - path: ${SITEGEN_TEST_SRC}
output:
  directory: ${SITEGEN_TEST_OUT}
`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.Sources[0].Path)
	assert.Equal(t, filepath.Join(dir, "from-local"), cfg.Output.Directory)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]string{
		"no sources":        `output: {directory: out}`,
		"duplicate names":   "sources:\n  - {name: a, path: x}\n  - {name: a, path: y}",
		"bad type":          "sources:\n  - {type: svn, path: x}",
		"missing path":      "sources:\n  - {name: a}",
		"bad mount point":   "sources:\n  - {path: x, mount_point: docs/}",
		"bad strip":         "sources:\n  - {path: x, strip_prefix: /a#b/}",
		"bad backend":       "sources:\n  - {path: x}\ncache: {backend: redis}",
		"bad language":      "sources:\n  - {path: x}\ngeneration: {default_language: english}",
		"bad dest template": "sources:\n  - {path: x}\ngeneration: {dest_template: \"<parent><name>\"}",
		"incomplete rule":   "sources:\n  - {path: x}\ngeneration: {pipelines: [{pattern: \"*.md\"}]}",
		"bad interval":      "sources:\n  - {path: x}\ndaemon: {interval: soon}",
		"negative debounce": "sources:\n  - {path: x}\ndaemon: {debounce: -1s}",
		"malformed yaml":    "sources: [",
		"negative retries":  "sources:\n  - {path: x}\nnotify: {retry: {max_retries: -1}}",
		"bad backoff":       "sources:\n  - {path: x}\nnotify: {retry: {backoff: random}}",
		"bad retry delay":   "sources:\n  - {path: x}\nnotify: {retry: {initial_delay: later}}",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content), t.TempDir())
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig), err.Error())
		})
	}
}

func TestCacheNoneNeedsNoPath(t *testing.T) {
	cfg, err := Parse([]byte("sources:\n  - {path: x}\ncache: {backend: none}"), "/base")
	require.NoError(t, err)
	assert.Equal(t, CacheNone, cfg.Cache.Backend)
	assert.Empty(t, cfg.Cache.Path)
}

func TestDefault(t *testing.T) {
	cfg, err := Default("/site")
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "/site", cfg.Sources[0].Path)
	assert.Equal(t, "/site/public", cfg.Output.Directory)
}

func TestLookup(t *testing.T) {
	cfg, err := Parse([]byte("sources:\n  - {path: x}\ngeneration: {default_version: \"2\", concurrency: 4}"), "/base")
	require.NoError(t, err)

	v, ok := cfg.Lookup("generation.default_version")
	require.True(t, ok)
	assert.Equal(t, "2", v)

	v, ok = cfg.Lookup("generation.concurrency")
	require.True(t, ok)
	assert.Equal(t, 4, v)

	_, ok = cfg.Lookup("generation.missing")
	assert.False(t, ok)
	_, ok = cfg.Lookup("generation.concurrency.deeper")
	assert.False(t, ok)
}

func TestNormalizeLogging(t *testing.T) {
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel("Warning"))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("loud"))
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat(" JSON "))
	assert.Equal(t, LogFormatText, NormalizeLogFormat("xml"))
}
