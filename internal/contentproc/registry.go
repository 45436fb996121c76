// Package contentproc runs named content processors over a rendering
// context.
//
// A processor transforms Context.Content (markdown to HTML, link
// relocation, ...). Processors are registered with a kind, text or binary,
// and an extension map describing how they change the output extension.
// A pipeline is an ordered list of processor names.
package contentproc

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// Processor transforms a rendering context.
type Processor interface {
	Call(ctx context.Context, rc *Context) (*Context, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, rc *Context) (*Context, error)

func (f ProcessorFunc) Call(ctx context.Context, rc *Context) (*Context, error) { return f(ctx, rc) }

// Kind classifies the content a processor works on.
type Kind int

const (
	KindText Kind = iota
	KindBinary
)

func (k Kind) String() string {
	if k == KindBinary {
		return "binary"
	}
	return "text"
}

type entry struct {
	name      string
	processor Processor
	kind      Kind
	extMap    map[string]string
}

// Registry maps processor names to processors.
type Registry struct {
	recorder metrics.Recorder

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewRegistry creates an empty registry. A nil recorder disables metrics.
func NewRegistry(recorder metrics.Recorder) *Registry {
	return &Registry{recorder: metrics.OrNoop(recorder), entries: map[string]*entry{}}
}

// Register adds a processor. extMap maps source extensions to the
// extension the processor produces, e.g. {"md": "html"}.
func (r *Registry) Register(name string, p Processor, kind Kind, extMap map[string]string) error {
	if name == "" || p == nil {
		return fmt.Errorf("content processor needs a name and an implementation")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("content processor %q already registered", name)
	}
	r.entries[name] = &entry{name: name, processor: p, kind: kind, extMap: maps.Clone(extMap)}
	r.order = append(r.order, name)
	return nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// IsBinary reports whether name works on binary content.
func (r *Registry) IsBinary(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.kind == KindBinary
}

// ExtensionMap returns the extension map of name. An empty name returns the
// combined map of all processors; on conflicts the first registration wins.
func (r *Registry) ExtensionMap(name string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name != "" {
		if e, ok := r.entries[name]; ok {
			return maps.Clone(e.extMap)
		}
		return map[string]string{}
	}
	out := map[string]string{}
	for _, n := range r.order {
		for from, to := range r.entries[n].extMap {
			if _, taken := out[from]; !taken {
				out[from] = to
			}
		}
	}
	return out
}

// MapExtension finds the first registered processor mapping ext and returns
// its name and the mapped extension.
func (r *Registry) MapExtension(ext string) (name, mapped string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.order {
		if to, hit := r.entries[n].extMap[ext]; hit {
			return n, to, true
		}
	}
	return "", "", false
}

var pipelineSep = regexp.MustCompile(`,\s*`)

// Normalize turns a pipeline specification into processor names. A string
// is split on commas; []string and []any are taken element-wise. Every name
// must be registered.
func (r *Registry) Normalize(spec any) ([]string, error) {
	var names []string
	switch v := spec.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		names = pipelineSep.Split(v, -1)
	case []string:
		names = slices.Clone(v)
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("pipeline entry must be a string, got %T", item)
			}
			names = append(names, s)
		}
	default:
		return nil, fmt.Errorf("pipeline must be a string or a list, got %T", spec)
	}
	for _, n := range names {
		if !r.Has(n) {
			return nil, &UnknownProcessorError{Name: n}
		}
	}
	return names, nil
}

// Run calls one processor. Failures, panics and a nil result are reported
// as *ProcessingError.
func (r *Registry) Run(ctx context.Context, name string, rc *Context) (out *Context, err error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownProcessorError{Name: name}
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, &ProcessingError{Processor: name, Node: rc.nodeName(), Cause: fmt.Errorf("panic: %v", rec)}
		}
		r.recorder.ObserveProcessorDuration(name, time.Since(start), err == nil)
	}()

	out, err = e.processor.Call(ctx, rc)
	if err != nil {
		return nil, &ProcessingError{Processor: name, Node: rc.nodeName(), Cause: err}
	}
	if out == nil {
		return nil, &ProcessingError{Processor: name, Node: rc.nodeName(), Cause: fmt.Errorf("processor returned no context")}
	}
	return out, nil
}

// Execute runs the pipeline in order, feeding each processor the context
// the previous one returned. It stops at the first failure or when ctx is
// canceled.
func (r *Registry) Execute(ctx context.Context, pipeline []string, rc *Context) (*Context, error) {
	cur := rc
	for _, name := range pipeline {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := r.Run(ctx, name, cur)
		if err != nil {
			return nil, err
		}
		cur = next
		cur.log().Debug("Processor finished", logfields.Node(cur.nodeName()), logfields.Processor(name), slog.Int("bytes", len(cur.Content)))
	}
	return cur, nil
}
