package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"git.home.luguber.info/inful/sitegen/internal/sitepath"
)

// FSProvider reads sources from a billy filesystem. Hidden entries (names
// starting with ".") are skipped, as is everything matching an exclude
// pattern.
type FSProvider struct {
	name    string
	fs      billy.Filesystem
	exclude []string
}

// NewFSProvider creates a provider over fs. exclude holds glob patterns in
// sitepath.Match syntax.
func NewFSProvider(name string, fs billy.Filesystem, exclude ...string) *FSProvider {
	return &FSProvider{name: name, fs: fs, exclude: exclude}
}

func (p *FSProvider) Name() string { return p.name }

// Paths walks the filesystem.
func (p *FSProvider) Paths(ctx context.Context) ([]string, error) {
	var files []string
	err := util.Walk(p.fs, "/", func(name string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		raw := "/" + strings.TrimPrefix(filepath.ToSlash(name), "/")
		if raw == "/" {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			raw += "/"
		}
		if excluded(raw, p.exclude, sitepath.Match) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, raw)
		return nil
	})
	if err != nil {
		return nil, &Error{Provider: p.name, Op: "walk", Err: err}
	}
	return withDirectories(files), nil
}

// Open opens a file location.
func (p *FSProvider) Open(raw string) (io.ReadCloser, error) {
	f, err := p.fs.Open(raw)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &Error{Provider: p.name, Op: "open " + raw, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Provider: p.name, Op: "open " + raw, Err: err}
	}
	return f, nil
}

// ModTime reports the modification time from the filesystem.
func (p *FSProvider) ModTime(raw string) (time.Time, error) {
	fi, err := p.fs.Stat(raw)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, &Error{Provider: p.name, Op: "stat " + raw, Err: ErrNotFound}
	}
	if err != nil {
		return time.Time{}, &Error{Provider: p.name, Op: "stat " + raw, Err: err}
	}
	return fi.ModTime(), nil
}
