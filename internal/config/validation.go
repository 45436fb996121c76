package config

import (
	"fmt"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
)

// Validate checks cfg after defaults were applied. The first problem is
// returned as a config error.
func Validate(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	for _, check := range []func() error{
		v.validateSources,
		v.validateCache,
		v.validateGeneration,
		v.validateDaemon,
		v.validateNotify,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func invalid(field, format string, args ...any) error {
	return ferrors.ConfigError("invalid configuration: "+fmt.Sprintf(format, args...)).
		WithContext("field", field).Build()
}

func (v *configurationValidator) validateSources() error {
	if len(v.config.Sources) == 0 {
		return invalid("sources", "at least one source must be configured")
	}
	names := map[string]bool{}
	for i, s := range v.config.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if names[s.Name] {
			return invalid(field+".name", "duplicate source name %q", s.Name)
		}
		names[s.Name] = true
		switch s.Type {
		case SourceFS, SourceGit:
		default:
			return invalid(field+".type", "unsupported source type %q", s.Type)
		}
		if s.Path == "" {
			return invalid(field+".path", "source %q needs a path", s.Name)
		}
		if err := sitepath.ValidateMountPoint(s.MountPoint); err != nil {
			return invalid(field+".mount_point", "%v", err)
		}
		if err := sitepath.ValidateMountPoint(s.Strip); err != nil {
			return invalid(field+".strip_prefix", "%v", err)
		}
	}
	return nil
}

func (v *configurationValidator) validateCache() error {
	switch v.config.Cache.Backend {
	case CacheFS, CacheSQLite:
		if v.config.Cache.Path == "" {
			return invalid("cache.path", "backend %q needs a path", v.config.Cache.Backend)
		}
	case CacheNone:
	default:
		return invalid("cache.backend", "unsupported cache backend %q", v.config.Cache.Backend)
	}
	return nil
}

func (v *configurationValidator) validateGeneration() error {
	g := v.config.Generation
	if g.DefaultLanguage != "" {
		if _, ok := sitepath.LanguageCode(g.DefaultLanguage); !ok {
			return invalid("generation.default_language", "unknown language %q", g.DefaultLanguage)
		}
	}
	vars := sitepath.TemplateVars{Parent: "/", Basename: "x", Lang: "en", Ext: "html", Version: "v", DefaultVersion: g.DefaultVersion}
	if _, err := sitepath.ResolveTemplateVars(g.DestTemplate, vars); err != nil {
		return invalid("generation.dest_template", "%v", err)
	}
	for i, rule := range g.Pipelines {
		if rule.Pattern == "" || rule.Pipeline == "" {
			return invalid(fmt.Sprintf("generation.pipelines[%d]", i), "pattern and pipeline are required")
		}
	}
	return nil
}

func (v *configurationValidator) validateDaemon() error {
	d := v.config.Daemon
	for field, value := range map[string]string{"daemon.interval": d.Interval, "daemon.debounce": d.Debounce} {
		if value == "" {
			continue
		}
		dur, err := time.ParseDuration(value)
		if err != nil {
			return invalid(field, "invalid duration %q", value)
		}
		if dur < 0 {
			return invalid(field, "duration must not be negative")
		}
	}
	return nil
}

func (v *configurationValidator) validateNotify() error {
	r := v.config.Notify.Retry
	if r.MaxRetries < 0 {
		return invalid("notify.retry.max_retries", "must not be negative")
	}
	switch RetryBackoffMode(strings.ToLower(string(r.Backoff))) {
	case "", RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
	default:
		return invalid("notify.retry.backoff", "unsupported backoff %q (fixed|linear|exponential)", r.Backoff)
	}
	for field, value := range map[string]string{"notify.retry.initial_delay": r.InitialDelay, "notify.retry.max_delay": r.MaxDelay} {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return invalid(field, "invalid duration %q", value)
		}
	}
	return nil
}
