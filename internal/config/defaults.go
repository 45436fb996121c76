package config

import (
	"fmt"
	"runtime"
	"strings"
)

// DefaultDestTemplate names output files after their source: language and
// non-default versions become name segments.
const DefaultDestTemplate = "<parent><basename>(-<version>)(.<lang>)<ext>"

// DefaultApplier applies defaults for one configuration section.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		sourcesDefaults{},
		outputDefaults{},
		cacheDefaults{},
		generationDefaults{},
		runtimeDefaults{},
	}
}

func applyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers() {
		if err := a.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("%s: %w", a.Domain(), err)
		}
	}
	return nil
}

type sourcesDefaults struct{}

func (sourcesDefaults) Domain() string { return "sources" }

func (sourcesDefaults) ApplyDefaults(cfg *Config) error {
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		if s.Type == "" {
			s.Type = SourceFS
		}
		s.Type = SourceType(strings.ToLower(string(s.Type)))
		if s.Name == "" {
			s.Name = fmt.Sprintf("%s-%d", s.Type, i)
		}
		if s.Type == SourceGit && s.Revision == "" {
			s.Revision = "HEAD"
		}
		if s.MountPoint == "" {
			s.MountPoint = "/"
		}
		if s.Strip == "" {
			s.Strip = "/"
		}
		s.Path = cfg.resolve(s.Path)
	}
	return nil
}

type outputDefaults struct{}

func (outputDefaults) Domain() string { return "output" }

func (outputDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "public"
	}
	cfg.Output.Directory = cfg.resolve(cfg.Output.Directory)
	return nil
}

type cacheDefaults struct{}

func (cacheDefaults) Domain() string { return "cache" }

func (cacheDefaults) ApplyDefaults(cfg *Config) error {
	c := &cfg.Cache
	c.Backend = CacheBackend(strings.ToLower(string(c.Backend)))
	if c.Backend == "" {
		c.Backend = CacheFS
	}
	if c.Path == "" {
		switch c.Backend {
		case CacheSQLite:
			c.Path = ".sitegen/cache.db"
		case CacheFS:
			c.Path = ".sitegen/cache.msgpack"
		}
	}
	c.Path = cfg.resolve(c.Path)
	return nil
}

type generationDefaults struct{}

func (generationDefaults) Domain() string { return "generation" }

func (generationDefaults) ApplyDefaults(cfg *Config) error {
	g := &cfg.Generation
	if g.DefaultVersion == "" {
		g.DefaultVersion = "default"
	}
	if g.Concurrency <= 0 {
		g.Concurrency = runtime.NumCPU()
	}
	if g.DestTemplate == "" {
		g.DestTemplate = DefaultDestTemplate
	}
	if g.Markdown.GFM == nil {
		enabled := true
		g.Markdown.GFM = &enabled
	}
	return nil
}

type runtimeDefaults struct{}

func (runtimeDefaults) Domain() string { return "runtime" }

func (runtimeDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Notify.SubjectPrefix == "" {
		cfg.Notify.SubjectPrefix = "sitegen"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Daemon.Debounce == "" {
		cfg.Daemon.Debounce = "500ms"
	}
	cfg.Journal.Path = cfg.resolve(cfg.Journal.Path)
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}
