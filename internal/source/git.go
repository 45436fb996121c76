package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
)

// GitProvider reads sources from the tree of a commit in a go-git
// repository. Blobs are content addressed, so modification times are not
// reported.
type GitProvider struct {
	name     string
	repo     *git.Repository
	revision string
	exclude  []string

	mu     sync.Mutex
	tree   *object.Tree
	commit plumbing.Hash
}

// NewGitProvider reads revision (default "HEAD") of repo.
func NewGitProvider(name string, repo *git.Repository, revision string, exclude ...string) *GitProvider {
	if revision == "" {
		revision = "HEAD"
	}
	return &GitProvider{name: name, repo: repo, revision: revision, exclude: exclude}
}

// OpenGitProvider opens the repository at dir.
func OpenGitProvider(name, dir, revision string, exclude ...string) (*GitProvider, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, &Error{Provider: name, Op: "open repository " + dir, Err: err}
	}
	return NewGitProvider(name, repo, revision, exclude...), nil
}

func (p *GitProvider) Name() string { return p.name }

// Commit returns the commit the last Paths call resolved.
func (p *GitProvider) Commit() plumbing.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commit
}

func (p *GitProvider) resolve() (*object.Tree, error) {
	hash, err := p.repo.ResolveRevision(plumbing.Revision(p.revision))
	if err != nil {
		return nil, ferrors.SourceError("resolve revision").
			WithCause(err).
			WithContext("revision", p.revision).
			Build()
	}
	commit, err := p.repo.CommitObject(*hash)
	if err != nil {
		return nil, ferrors.SourceError("get commit object").
			WithCause(err).
			WithContext("commit", hash.String()).
			Build()
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	p.mu.Lock()
	p.tree, p.commit = tree, commit.Hash
	p.mu.Unlock()
	return tree, nil
}

func (p *GitProvider) current() (*object.Tree, error) {
	p.mu.Lock()
	tree := p.tree
	p.mu.Unlock()
	if tree != nil {
		return tree, nil
	}
	return p.resolve()
}

// Paths resolves the revision again and lists its files.
func (p *GitProvider) Paths(ctx context.Context) ([]string, error) {
	tree, err := p.resolve()
	if err != nil {
		return nil, &Error{Provider: p.name, Op: "read tree", Err: err}
	}
	var files []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := "/" + f.Name
		if hidden(raw) || excluded(raw, p.exclude, sitepath.Match) {
			return nil
		}
		files = append(files, raw)
		return nil
	})
	if err != nil {
		return nil, &Error{Provider: p.name, Op: "list files", Err: err}
	}
	return withDirectories(files), nil
}

// Open reads a blob of the resolved tree.
func (p *GitProvider) Open(raw string) (io.ReadCloser, error) {
	tree, err := p.current()
	if err != nil {
		return nil, &Error{Provider: p.name, Op: "read tree", Err: err}
	}
	f, err := tree.File(strings.TrimPrefix(raw, "/"))
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, &Error{Provider: p.name, Op: "open " + raw, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Provider: p.name, Op: "open " + raw, Err: err}
	}
	r, err := f.Reader()
	if err != nil {
		return nil, &Error{Provider: p.name, Op: "open " + raw, Err: err}
	}
	return r, nil
}

// ModTime always reports the zero time.
func (p *GitProvider) ModTime(string) (time.Time, error) {
	return time.Time{}, nil
}

func hidden(raw string) bool {
	for _, seg := range strings.Split(raw, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
