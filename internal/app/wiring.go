package app

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"

	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/storage"
)

// Provider builds the source provider of cfg. A single source mounted at the
// root is used directly; anything else is stacked in configuration order.
func Provider(cfg *config.Config) (source.Provider, error) {
	mounts := make([]source.Mount, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		var p source.Provider
		switch sc.Type {
		case config.SourceGit:
			gp, err := source.OpenGitProvider(sc.Name, sc.Path, sc.Revision, sc.Exclude...)
			if err != nil {
				return nil, err
			}
			p = gp
		default:
			if _, err := os.Stat(sc.Path); err != nil {
				return nil, ferrors.SourceError("source directory not accessible").WithCause(err).
					WithContext("source", sc.Name).
					WithContext("path", sc.Path).
					Build()
			}
			p = source.NewFSProvider(sc.Name, osfs.New(sc.Path), sc.Exclude...)
		}
		mounts = append(mounts, source.Mount{Provider: p, Prefix: sc.MountPoint, Strip: sc.Strip})
	}
	if len(mounts) == 1 && isRoot(mounts[0].Prefix) && isRoot(mounts[0].Strip) {
		return mounts[0].Provider, nil
	}
	return source.NewStacked(mounts...)
}

func isRoot(p string) bool { return p == "" || p == "/" }

// CacheBackend opens the persistence configured for the cache snapshot.
func CacheBackend(cc config.CacheConfig) (storage.Backend, error) {
	switch cc.Backend {
	case config.CacheNone:
		return storage.NewMemoryBackend(), nil
	case config.CacheSQLite:
		if err := ensureParent(cc.Path); err != nil {
			return nil, err
		}
		b, err := storage.NewSQLiteBackend(cc.Path)
		if err != nil {
			return nil, ferrors.CacheError("open cache database").WithCause(err).
				WithContext("path", cc.Path).
				Build()
		}
		return b, nil
	default:
		if err := ensureParent(cc.Path); err != nil {
			return nil, err
		}
		return storage.NewFSBackend(osfs.New(filepath.Dir(cc.Path)), filepath.Base(cc.Path)), nil
	}
}

// FSSourceDirs lists the directories of filesystem sources, the ones a
// watcher can observe.
func FSSourceDirs(cfg *config.Config) []string {
	var dirs []string
	for _, sc := range cfg.Sources {
		if sc.Type == config.SourceFS {
			dirs = append(dirs, sc.Path)
		}
	}
	return dirs
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.FileSystemError("create directory").WithCause(err).
			WithContext("path", filepath.Dir(path)).
			Build()
	}
	return nil
}
