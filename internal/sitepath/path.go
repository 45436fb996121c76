// Package sitepath models source locations and derives their canonical names.
//
// A Path is parsed from an absolute raw location such as "/docs/5.intro.de.md".
// Parsing splits the trailing segment into an optional sort index, a
// basename, an optional language code and an extension. From those fields
// the package derives four identities:
//
//	CN    language independent local name     intro.md
//	LCN   localized local name                intro.de.md
//	ACN   absolute CN                         /docs/intro.md
//	ALCN  absolute LCN                        /docs/intro.de.md
//
// ALCN is the key used for nodes, cache entries and tracked items.
package sitepath

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
)

// DefaultVersion is the version assumed when neither options nor meta name one.
const DefaultVersion = "default"

// Meta keys interpreted while deriving identities.
const (
	MetaCN      = "cn"
	MetaLang    = "lang"
	MetaVersion = "version"
	MetaSort    = "sort"
	MetaTitle   = "title"
)

const defaultCNTemplate = "<basename>(-<version>)<ext>"

// ErrNoContent is returned by Data and Open when the path has no content opener.
var ErrNoContent = errors.New("path has no content")

// Opener returns a fresh reader over the content behind a path.
type Opener func() (io.ReadCloser, error)

// Option configures Parse.
type Option func(*options)

type options struct {
	defaultVersion string
	opener         Opener
}

// WithDefaultVersion sets the version treated as "no version" in names.
func WithDefaultVersion(v string) Option {
	return func(o *options) {
		if v != "" {
			o.defaultVersion = v
		}
	}
}

// WithOpener attaches a content accessor to the parsed path.
func WithOpener(fn Opener) Option {
	return func(o *options) { o.opener = fn }
}

// Identity groups the derived canonical names of a Path.
type Identity struct {
	CN   string
	LCN  string
	ACN  string
	ALCN string
}

// Path is a parsed source location plus its meta information.
//
// A Path is safe for concurrent reads. Meta changes must go through Set so the
// memoized identity is recomputed.
type Path struct {
	raw        string
	parentPath string
	basename   string
	lang       string
	ext        string
	sortIndex  int
	hasSort    bool
	parsed     parsedFields
	version    string
	meta       map[string]any
	fragment   bool
	extSet     bool

	defaultVersion string
	opener         Opener

	mu       sync.Mutex
	identity *Identity
}

// Parse analyses raw and applies meta overrides.
func Parse(raw string, meta map[string]any, opts ...Option) (*Path, error) {
	o := options{defaultVersion: DefaultVersion}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Path{
		raw:            raw,
		meta:           maps.Clone(meta),
		defaultVersion: o.defaultVersion,
		opener:         o.opener,
	}
	if p.meta == nil {
		p.meta = map[string]any{}
	}
	if err := p.analyse(); err != nil {
		return nil, err
	}
	if err := p.refreshLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// MustParse is Parse for static, known-good locations. It panics on error.
func MustParse(raw string, meta map[string]any, opts ...Option) *Path {
	p, err := Parse(raw, meta, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Path) Raw() string        { return p.raw }
func (p *Path) String() string     { return p.raw }
func (p *Path) ParentPath() string { return p.parentPath }
func (p *Path) Basename() string   { return p.basename }
func (p *Path) Lang() string       { return p.lang }
func (p *Path) Ext() string        { return p.ext }
func (p *Path) Version() string    { return p.version }

// DefaultVersion returns the version that is hidden in derived names.
func (p *Path) DefaultVersion() string { return p.defaultVersion }

// SortIndex returns the numeric ordering prefix, if any.
func (p *Path) SortIndex() (int, bool) { return p.sortIndex, p.hasSort }

// IsDirectory reports whether the raw location ends in a separator.
func (p *Path) IsDirectory() bool { return strings.HasSuffix(p.raw, "/") }

// IsFragment reports whether the path names a fragment of another path.
func (p *Path) IsFragment() bool { return p.fragment }

// Get returns the meta value stored under key.
func (p *Path) Get(key string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.meta[key]
	return v, ok
}

// GetString returns the meta value under key if it is a string.
func (p *Path) GetString(key string) string {
	v, _ := p.Get(key)
	s, _ := v.(string)
	return s
}

// Meta returns a copy of the meta information.
func (p *Path) Meta() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.meta)
}

// Set stores a meta value. Keys that influence naming are validated and the
// derived identity is recomputed on next access. On error the previous value
// is restored.
func (p *Path) Set(key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, had := p.meta[key]
	p.meta[key] = value
	switch key {
	case MetaCN, MetaLang, MetaVersion, MetaSort:
	default:
		return nil
	}
	if err := p.refreshLocked(); err != nil {
		if had {
			p.meta[key] = prev
		} else {
			delete(p.meta, key)
		}
		_ = p.refreshLocked()
		return err
	}
	return nil
}

// Clone returns an independent copy sharing only the content opener.
func (p *Path) Clone() *Path {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &Path{
		raw:            p.raw,
		parentPath:     p.parentPath,
		basename:       p.basename,
		lang:           p.lang,
		ext:            p.ext,
		sortIndex:      p.sortIndex,
		hasSort:        p.hasSort,
		parsed:         p.parsed,
		version:        p.version,
		meta:           maps.Clone(p.meta),
		fragment:       p.fragment,
		extSet:         p.extSet,
		defaultVersion: p.defaultVersion,
		opener:         p.opener,
	}
}

// SetExtension returns a copy whose extension is ext. Language, version and
// directory-ness are kept.
func (p *Path) SetExtension(ext string) *Path {
	c := p.Clone()
	c.ext = strings.TrimPrefix(ext, ".")
	c.extSet = true
	return c
}

// Open returns a reader over the path content.
func (p *Path) Open() (io.ReadCloser, error) {
	if p.opener == nil {
		return nil, fmt.Errorf("%s: %w", p.raw, ErrNoContent)
	}
	return p.opener()
}

// HasContent reports whether a content opener is attached.
func (p *Path) HasContent() bool { return p.opener != nil }

// Data reads the whole content.
func (p *Path) Data() ([]byte, error) {
	rc, err := p.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("read %s: %w", p.raw, err)
	}
	return buf.Bytes(), nil
}

// WithContent returns a copy using fn as content opener.
func (p *Path) WithContent(fn Opener) *Path {
	c := p.Clone()
	c.opener = fn
	return c
}

// Compare orders paths by raw location.
func Compare(a, b *Path) int {
	return strings.Compare(a.raw, b.raw)
}

// parsedFields keeps what analysis derived from the raw location so meta
// overrides can be reverted.
type parsedFields struct {
	lang      string
	sortIndex int
	hasSort   bool
}

// refreshLocked reapplies meta overrides and validates the name template.
// Callers hold p.mu.
func (p *Path) refreshLocked() error {
	p.identity = nil
	p.lang = p.parsed.lang
	p.sortIndex, p.hasSort = p.parsed.sortIndex, p.parsed.hasSort

	p.version = p.defaultVersion
	if v, ok := p.meta[MetaVersion].(string); ok && v != "" {
		p.version = v
	}

	if v, ok := p.meta[MetaLang]; ok && !p.fragment && !p.IsDirectory() {
		switch l := v.(type) {
		case nil:
			p.lang = ""
		case string:
			if l == "" {
				p.lang = ""
				break
			}
			code, ok := LanguageCode(l)
			if !ok {
				return &FormatError{Raw: p.raw, Reason: fmt.Sprintf("unknown language %q", l)}
			}
			p.lang = code
		default:
			return &FormatError{Raw: p.raw, Reason: fmt.Sprintf("language must be a string, got %T", v)}
		}
	}

	switch n := p.meta[MetaSort].(type) {
	case int:
		p.sortIndex, p.hasSort = n, true
	case int64:
		p.sortIndex, p.hasSort = int(n), true
	case float64:
		p.sortIndex, p.hasSort = int(n), true
	}

	_, err := p.localName()
	return err
}
