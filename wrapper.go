package bundi

import (
	"reflect"
	"sync"

	"github.com/imdat99/bun-di-sub000/internal/reflection"
)

// depKind classifies how a dependency is satisfied.
type depKind int

const (
	depToken     depKind = iota // resolved through the host module
	depContext                  // the resolution context.Context
	depModuleRef                // a *ModuleRef bound to the host module
	depRequest                  // the current request *Context
)

// Dependency is one constructor, factory or property dependency.
type Dependency struct {
	Token    Token
	Optional bool

	// Forward marks a dependency satisfied with a lazy Ref handle.
	Forward bool

	// Index is the parameter position, -1 for property dependencies.
	Index int

	// Type is the declared parameter or field type.
	Type reflect.Type

	kind depKind
}

// PropertyDependency is a dependency assigned to a struct field after
// construction.
type PropertyDependency struct {
	Dependency
	Key string

	field []int
}

// InstanceWrapper describes one injectable unit: its token, construction
// strategy, scope, dependencies and cached instances.
type InstanceWrapper struct {
	Token Token
	Name  string

	strategy     Strategy
	scope        Scope
	host         *Module
	isController bool
	isModule     bool

	fn       *reflection.FuncInfo // class and factory strategies
	value    any                  // value strategy
	existing Token                // alias strategy

	deps  []Dependency
	props []PropertyDependency

	mu        sync.Mutex
	resolved  bool
	instance  any
	instances map[ContextID]any
	inflight  map[ContextID]*construction
}

// construction records an instance being built so concurrent resolvers of
// the same slot wait for it instead of building their own.
type construction struct {
	done  chan struct{}
	value any
	err   error
}

// Strategy returns the construction strategy.
func (w *InstanceWrapper) Strategy() Strategy {
	return w.strategy
}

// Scope returns the effective scope, after scope bubbling.
func (w *InstanceWrapper) Scope() Scope {
	return w.scope
}

// Host returns the module that declared the wrapper.
func (w *InstanceWrapper) Host() *Module {
	return w.host
}

// IsController reports whether the wrapper was declared as a controller.
func (w *InstanceWrapper) IsController() bool {
	return w.isController
}

// Dependencies returns the constructor or factory dependencies in order.
func (w *InstanceWrapper) Dependencies() []Dependency {
	return append([]Dependency(nil), w.deps...)
}

// PropertyDependencies returns the property dependencies.
func (w *InstanceWrapper) PropertyDependencies() []PropertyDependency {
	return append([]PropertyDependency(nil), w.props...)
}

// dependsOnRequest reports whether the wrapper injects the request context
// directly.
func (w *InstanceWrapper) dependsOnRequest() bool {
	for _, d := range w.deps {
		if d.kind == depRequest {
			return true
		}
	}
	for _, p := range w.props {
		if p.kind == depRequest {
			return true
		}
	}
	return false
}

// slot returns the cache slot for id under the wrapper's scope.
func (w *InstanceWrapper) slot(id ContextID) ContextID {
	if w.scope == Request {
		return id
	}
	return StaticContextID
}

// cached returns the instance cached for id.
func (w *InstanceWrapper) cached(id ContextID) (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cachedLocked(id)
}

func (w *InstanceWrapper) cachedLocked(id ContextID) (any, bool) {
	switch w.scope {
	case Singleton:
		return w.instance, w.resolved
	case Request:
		v, ok := w.instances[id]
		return v, ok
	default:
		return nil, false
	}
}

// begin either returns a cached instance, an in-flight construction to wait
// for, or registers a new construction owned by the caller.
func (w *InstanceWrapper) begin(id ContextID) (value any, wait *construction, own *construction, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if v, hit := w.cachedLocked(id); hit {
		return v, nil, nil, true
	}

	slot := w.slot(id)
	if c, exists := w.inflight[slot]; exists {
		return nil, c, nil, false
	}

	c := &construction{done: make(chan struct{})}
	if w.inflight == nil {
		w.inflight = make(map[ContextID]*construction)
	}
	w.inflight[slot] = c
	return nil, nil, c, false
}

// finish stores the outcome of a construction started with begin.
func (w *InstanceWrapper) finish(id ContextID, c *construction, value any, err error) {
	w.mu.Lock()
	slot := w.slot(id)
	delete(w.inflight, slot)
	if err == nil {
		w.storeLocked(id, value)
	}
	w.mu.Unlock()

	c.value, c.err = value, err
	close(c.done)
}

func (w *InstanceWrapper) storeLocked(id ContextID, value any) {
	switch w.scope {
	case Singleton:
		w.instance = value
		w.resolved = true
	case Request:
		if w.instances == nil {
			w.instances = make(map[ContextID]any)
		}
		w.instances[id] = value
	}
}

// isInflight reports whether an instance for id is being constructed.
func (w *InstanceWrapper) isInflight(id ContextID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.inflight[w.slot(id)]
	return ok
}

// Evict drops the instance cached for id. It returns the evicted instance.
func (w *InstanceWrapper) Evict(id ContextID) (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	v, ok := w.instances[id]
	delete(w.instances, id)
	return v, ok
}

// EvictAll drops every request-scoped instance.
func (w *InstanceWrapper) EvictAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.instances = nil
}

// cachedCount returns the number of request-scoped instances held.
func (w *InstanceWrapper) cachedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.instances)
}

// Instance returns the singleton instance, if it has been created.
func (w *InstanceWrapper) Instance() (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scope != Singleton {
		return nil, false
	}
	return w.instance, w.resolved
}
