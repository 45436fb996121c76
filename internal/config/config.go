// Package config loads the sitegen configuration file.
//
// The file is YAML. Before parsing, .env.local and .env next to the file are
// loaded into the process environment (existing variables win) and ${VAR}
// references are expanded. Defaults are applied per section and the result
// is validated.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Config is the complete configuration of a site.
type Config struct {
	Sources    []SourceConfig   `yaml:"sources"`
	Output     OutputConfig     `yaml:"output"`
	Cache      CacheConfig      `yaml:"cache"`
	Generation GenerationConfig `yaml:"generation"`
	Extensions ExtensionsConfig `yaml:"extensions"`
	Notify     NotifyConfig     `yaml:"notify"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Journal    JournalConfig    `yaml:"journal"`
	Logging    LoggingConfig    `yaml:"logging"`

	// baseDir anchors relative paths; it is the directory of the loaded file.
	baseDir string
}

// SourceType selects the provider of a source mount.
type SourceType string

const (
	SourceFS  SourceType = "fs"
	SourceGit SourceType = "git"
)

// SourceConfig mounts one source provider into the site.
type SourceConfig struct {
	Name       string     `yaml:"name"`
	Type       SourceType `yaml:"type"`
	Path       string     `yaml:"path"`
	Revision   string     `yaml:"revision,omitempty"` // git only
	MountPoint string     `yaml:"mount_point"`
	Strip      string     `yaml:"strip_prefix"`
	Exclude    []string   `yaml:"exclude,omitempty"`
}

// OutputConfig describes where generated files are written.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// CacheBackend selects the persistence of the cache snapshot.
type CacheBackend string

const (
	CacheFS     CacheBackend = "fs"
	CacheSQLite CacheBackend = "sqlite"
	CacheNone   CacheBackend = "none"
)

type CacheConfig struct {
	Backend CacheBackend `yaml:"backend"`
	Path    string       `yaml:"path"`
}

// PipelineRule assigns a processing pipeline to locations matching Pattern.
// Pipeline is a comma separated list of processor names.
type PipelineRule struct {
	Pattern  string `yaml:"pattern"`
	Pipeline string `yaml:"pipeline"`
}

// GenerationConfig controls how sources become output.
type GenerationConfig struct {
	DefaultVersion  string         `yaml:"default_version"`
	DefaultLanguage string         `yaml:"default_language"`
	Concurrency     int            `yaml:"concurrency"`
	Pipelines       []PipelineRule `yaml:"pipelines"`
	DestTemplate    string         `yaml:"dest_template"`
	IncludeDrafts   bool           `yaml:"include_drafts"`
	Markdown        MarkdownConfig `yaml:"markdown"`
}

type MarkdownConfig struct {
	GFM        *bool `yaml:"gfm"`
	HeadingIDs bool  `yaml:"heading_ids"`
	Unsafe     bool  `yaml:"unsafe"`
}

// ExtensionsConfig overrides extension parameters and disables trackers.
type ExtensionsConfig struct {
	Params           map[string]map[string]any `yaml:"params"`
	DisabledTrackers []string                  `yaml:"disabled_trackers"`
}

// NotifyConfig enables NATS notifications when URL is set. With a Stream the
// events are published through JetStream.
type NotifyConfig struct {
	URL           string      `yaml:"url"`
	SubjectPrefix string      `yaml:"subject_prefix"`
	Stream        string      `yaml:"stream"`
	Retry         RetryConfig `yaml:"retry"`
}

// RetryBackoffMode selects how the delay between retries grows.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// RetryConfig controls retries of transient failures. Zero MaxRetries
// disables retrying.
type RetryConfig struct {
	MaxRetries   int              `yaml:"max_retries"`
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay string           `yaml:"initial_delay"`
	MaxDelay     string           `yaml:"max_delay"`
}

// InitialDuration returns the parsed initial delay, zero when unset.
func (r RetryConfig) InitialDuration() time.Duration { return mustDuration(r.InitialDelay) }

// MaxDuration returns the parsed delay cap, zero when unset.
func (r RetryConfig) MaxDuration() time.Duration { return mustDuration(r.MaxDelay) }

// Enabled reports whether notifications are configured.
func (n NotifyConfig) Enabled() bool { return n.URL != "" }

// MetricsConfig exposes Prometheus metrics on Listen in daemon mode.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// DaemonConfig controls the watch and daemon modes.
type DaemonConfig struct {
	Interval string `yaml:"interval"`
	Watch    bool   `yaml:"watch"`
	Debounce string `yaml:"debounce"`
}

// IntervalDuration returns the regeneration interval; zero disables it.
func (d DaemonConfig) IntervalDuration() time.Duration { return mustDuration(d.Interval) }

// DebounceDuration returns the watch debounce window.
func (d DaemonConfig) DebounceDuration() time.Duration { return mustDuration(d.Debounce) }

// JournalConfig enables the SQLite run journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path"`
}

func mustDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Load reads, expands, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if err := loadEnvFiles(dir); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithContext("path", path).WithCause(err).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", path).Build()
	}
	return Parse(data, dir)
}

// Parse decodes data as a configuration whose relative paths resolve
// against baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config").Build()
	}
	cfg.baseDir = baseDir

	if err := applyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given: the
// directory dir is the single source and everything else is defaulted.
func Default(dir string) (*Config, error) {
	cfg := &Config{
		Sources: []SourceConfig{{Name: "site", Type: SourceFS, Path: "."}},
		baseDir: dir,
	}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BaseDir returns the directory relative paths were resolved against.
func (c *Config) BaseDir() string { return c.baseDir }

// Lookup returns the value at a dotted key such as
// "generation.default_version", as it would appear in the YAML file.
func (c *Config) Lookup(key string) (any, bool) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, false
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, false
	}
	var cur any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}
