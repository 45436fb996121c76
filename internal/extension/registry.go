// Package extension registers named extensions, orders them by their
// declared dependencies and instantiates them.
//
// Registration is two-phase. During discovery extensions are registered
// and configuration overrides are applied; nothing is constructed. During
// instantiation the registry sorts the registrations topologically and calls
// each factory once, dependencies first.
package extension

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Factory constructs an extension. It may read parameters and already
// constructed dependencies from the registry.
type Factory func(ctx context.Context, r *Registry) (any, error)

// Registration describes one extension.
type Registration struct {
	Name      string
	DependsOn []string
	Factory   Factory
	// Params holds declared parameter defaults.
	Params map[string]any
	// Parent names a registration whose defaults this one inherits.
	Parent string
	// Abstract registrations only carry defaults; they are never instantiated.
	Abstract bool
}

// Registry holds registrations, parameter overrides and, after
// InstantiateAll, the constructed extensions.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	regs      map[string]*Registration
	overrides map[string]map[string]any
	instances map[string]any
	order     []string
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:    logger,
		regs:      map[string]*Registration{},
		overrides: map[string]map[string]any{},
		instances: map[string]any{},
	}
}

// Register adds a registration. Names are unique; concrete registrations
// need a factory.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("extension name is required")
	}
	if !reg.Abstract && reg.Factory == nil {
		return fmt.Errorf("extension %q has no factory", reg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.regs[reg.Name]; exists {
		return fmt.Errorf("extension %q already registered", reg.Name)
	}
	reg.DependsOn = slices.Clone(reg.DependsOn)
	reg.Params = maps.Clone(reg.Params)
	r.regs[reg.Name] = &reg
	r.order = nil
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.regs[name]
	return ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.regs))
}

// SetParam overrides a parameter of name.
func (r *Registry) SetParam(name, key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overrides[name] == nil {
		r.overrides[name] = map[string]any{}
	}
	r.overrides[name][key] = value
}

// Discover applies configured parameter overrides, keyed by extension name.
// Overrides for unregistered extensions are rejected.
func (r *Registry) Discover(overrides map[string]map[string]any) error {
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		if !r.Has(name) {
			return &MissingDependencyError{Name: name, NeededBy: "configuration"}
		}
		for key, value := range overrides[name] {
			r.SetParam(name, key, value)
		}
	}
	return nil
}

// ParamValue returns the override for key, else the default declared by
// name, else the default of the nearest ancestor declaring it.
func (r *Registry) ParamValue(name, key string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.overrides[name][key]; ok {
		return v, nil
	}
	seen := map[string]bool{}
	for cur := name; cur != "" && !seen[cur]; {
		seen[cur] = true
		reg, ok := r.regs[cur]
		if !ok {
			break
		}
		if v, ok := reg.Params[key]; ok {
			return v, nil
		}
		cur = reg.Parent
	}
	return nil, &ParamNotFoundError{Extension: name, Key: key}
}

// Param is ParamValue with a type assertion.
func Param[T any](r *Registry, name, key string) (T, error) {
	var zero T
	v, err := r.ParamValue(name, key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("extension %q parameter %q: want %T, got %T", name, key, zero, v)
	}
	return typed, nil
}

// Order returns the dependency order computed by the last successful
// Resolve or InstantiateAll.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Resolve validates dependencies and parents and computes the
// instantiation order.
func (r *Registry) Resolve() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, err := r.sortLocked()
	if err != nil {
		return nil, err
	}
	r.order = order
	return slices.Clone(order), nil
}

const (
	unvisited = iota
	visiting
	done
)

// sortLocked is a depth-first topological sort: every name appears after
// the names it depends on. Roots are visited in name order and dependencies
// in declaration order, so the result is deterministic.
func (r *Registry) sortLocked() ([]string, error) {
	for _, name := range slices.Sorted(maps.Keys(r.regs)) {
		if parent := r.regs[name].Parent; parent != "" {
			if _, ok := r.regs[parent]; !ok {
				return nil, &MissingDependencyError{Name: parent, NeededBy: name}
			}
		}
	}

	state := make(map[string]int, len(r.regs))
	order := make([]string, 0, len(r.regs))
	var stack []string

	var visit func(name, neededBy string) error
	visit = func(name, neededBy string) error {
		reg, ok := r.regs[name]
		if !ok {
			return &MissingDependencyError{Name: name, NeededBy: neededBy}
		}
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := slices.Index(stack, name)
			chain := append(slices.Clone(stack[start:]), name)
			return &CycleError{Chain: chain}
		}
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range reg.DependsOn {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range slices.Sorted(maps.Keys(r.regs)) {
		if err := visit(name, ""); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// InstantiateAll constructs every concrete extension in dependency order.
// Abstract registrations are skipped. Already constructed extensions are
// kept. Nothing is constructed when the order cannot be resolved.
func (r *Registry) InstantiateAll(ctx context.Context) (map[string]any, error) {
	order, err := r.Resolve()
	if err != nil {
		return nil, err
	}

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.mu.RLock()
		reg := r.regs[name]
		_, built := r.instances[name]
		r.mu.RUnlock()
		if reg.Abstract || built {
			continue
		}

		inst, err := reg.Factory(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("instantiate extension %q: %w", name, err)
		}
		r.mu.Lock()
		r.instances[name] = inst
		r.mu.Unlock()
		r.logger.Debug("Instantiated extension", logfields.Extension(name))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.instances), nil
}

// Instance returns a constructed extension.
func (r *Registry) Instance(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.instances[name]
	return v, ok
}
