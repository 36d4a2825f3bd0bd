package bundi

import (
	"reflect"
	"sync"
)

// Well-known metadata keys written by the registration helpers.
const (
	MetadataInjectable   = "bundi:injectable"
	MetadataScope        = "bundi:scope"
	MetadataInjectTokens = "bundi:inject-tokens"
	MetadataOptional     = "bundi:optional"
	MetadataProperties   = "bundi:properties"
	MetadataGuards       = "bundi:guards"
	MetadataInterceptors = "bundi:interceptors"
	MetadataPipes        = "bundi:pipes"
	MetadataFilters      = "bundi:filters"
	MetadataCatch        = "bundi:catch"
)

// MethodTarget addresses one handler method of a controller.
type MethodTarget struct {
	Class  any
	Method string
}

// MetadataRegistry is a side table of facts recorded about constructors,
// controllers and handler methods. Entries are keyed by (target, key).
//
// MetadataRegistry is safe for concurrent use.
type MetadataRegistry struct {
	mu      sync.RWMutex
	entries map[metadataKey]any
}

type metadataKey struct {
	target any
	key    string
}

// funcTarget identifies a function by its code pointer, since func values
// are not comparable.
type funcTarget struct {
	typ reflect.Type
	ptr uintptr
}

// NewMetadataRegistry creates an empty registry.
func NewMetadataRegistry() *MetadataRegistry {
	return &MetadataRegistry{entries: make(map[metadataKey]any)}
}

// defaultMetadata receives the registrations made through package-level
// helpers such as Injectable.
var defaultMetadata = NewMetadataRegistry()

// DefaultMetadata returns the process-wide registry used by Injectable and
// SetMetadata.
func DefaultMetadata() *MetadataRegistry {
	return defaultMetadata
}

// Define records value for (target, key), replacing any previous value.
func (r *MetadataRegistry) Define(target any, key string, value any) {
	k, ok := normalizeTarget(target)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[metadataKey{target: k, key: key}] = value
}

// Append adds values to the slice stored under (target, key).
func (r *MetadataRegistry) Append(target any, key string, values ...any) {
	k, ok := normalizeTarget(target)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mk := metadataKey{target: k, key: key}
	existing, _ := r.entries[mk].([]any)
	merged := make([]any, 0, len(existing)+len(values))
	merged = append(merged, existing...)
	merged = append(merged, values...)
	r.entries[mk] = merged
}

// Get returns the value stored under (target, key).
func (r *MetadataRegistry) Get(target any, key string) (any, bool) {
	k, ok := normalizeTarget(target)
	if !ok {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[metadataKey{target: k, key: key}]
	return v, ok
}

// Has reports whether a value is stored under (target, key).
func (r *MetadataRegistry) Has(target any, key string) bool {
	_, ok := r.Get(target, key)
	return ok
}

// List returns the slice stored under (target, key), or nil.
func (r *MetadataRegistry) List(target any, key string) []any {
	v, _ := r.Get(target, key)
	list, _ := v.([]any)
	return list
}

// Delete removes the value stored under (target, key).
func (r *MetadataRegistry) Delete(target any, key string) {
	k, ok := normalizeTarget(target)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, metadataKey{target: k, key: key})
}

func normalizeTarget(target any) (any, bool) {
	if target == nil {
		return nil, false
	}

	switch t := target.(type) {
	case MethodTarget:
		class, ok := normalizeTarget(t.Class)
		if !ok {
			return nil, false
		}
		return MethodTarget{Class: class, Method: t.Method}, true
	case funcTarget:
		return t, true
	}

	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Func {
		if v.IsNil() {
			return nil, false
		}
		return funcTarget{typ: v.Type(), ptr: v.Pointer()}, true
	}

	if !v.Type().Comparable() {
		return nil, false
	}

	return target, true
}

// ========================================
// Injectable metadata
// ========================================

// InjectableOption configures the metadata recorded by Injectable.
type InjectableOption func(r *MetadataRegistry, ctor any)

// Injectable records DI metadata for a constructor. Listing the constructor in
// a module's Providers then uses this metadata.
//
// Example:
//
//	func NewRequestLogger(req *bundi.Context) *RequestLogger { ... }
//
//	func init() {
//	    bundi.Injectable(NewRequestLogger, bundi.WithScope(bundi.Request))
//	}
func Injectable(ctor any, opts ...InjectableOption) {
	InjectableIn(defaultMetadata, ctor, opts...)
}

// InjectableIn is Injectable for an explicit registry.
func InjectableIn(r *MetadataRegistry, ctor any, opts ...InjectableOption) {
	r.Define(ctor, MetadataInjectable, true)
	for _, opt := range opts {
		if opt != nil {
			opt(r, ctor)
		}
	}
}

// WithScope sets the scope of an injectable constructor.
func WithScope(scope Scope) InjectableOption {
	return func(r *MetadataRegistry, ctor any) {
		r.Define(ctor, MetadataScope, scope)
	}
}

// Inject overrides the inferred token of the constructor parameter at index.
// The token may be a ForwardReference.
func Inject(index int, token Token) InjectableOption {
	return func(r *MetadataRegistry, ctor any) {
		tokens, _ := r.mustGet(ctor, MetadataInjectTokens).(map[int]Token)
		next := make(map[int]Token, len(tokens)+1)
		for k, v := range tokens {
			next[k] = v
		}
		next[index] = token
		r.Define(ctor, MetadataInjectTokens, next)
	}
}

// OptionalParam marks the constructor parameter at index as optional.
func OptionalParam(index int) InjectableOption {
	return func(r *MetadataRegistry, ctor any) {
		flags, _ := r.mustGet(ctor, MetadataOptional).(map[int]bool)
		next := make(map[int]bool, len(flags)+1)
		for k, v := range flags {
			next[k] = v
		}
		next[index] = true
		r.Define(ctor, MetadataOptional, next)
	}
}

// PropertyInjection describes a field assigned after construction.
type PropertyInjection struct {
	Key      string
	Token    Token
	Optional bool
}

// Property injects token into the exported field key of the constructed
// instance. The instance must be a pointer to a struct.
func Property(key string, token Token) InjectableOption {
	return propertyOption(PropertyInjection{Key: key, Token: token})
}

// OptionalProperty is Property for an optional dependency.
func OptionalProperty(key string, token Token) InjectableOption {
	return propertyOption(PropertyInjection{Key: key, Token: token, Optional: true})
}

func propertyOption(p PropertyInjection) InjectableOption {
	return func(r *MetadataRegistry, ctor any) {
		r.Append(ctor, MetadataProperties, p)
	}
}

func (r *MetadataRegistry) mustGet(target any, key string) any {
	v, _ := r.Get(target, key)
	return v
}

// ========================================
// Reflector
// ========================================

// Reflector reads custom metadata attached to controllers and handlers with
// SetMetadata. It is available for injection in every module.
type Reflector struct {
	registry *MetadataRegistry
}

// NewReflector creates a reflector over registry.
func NewReflector(registry *MetadataRegistry) *Reflector {
	return &Reflector{registry: registry}
}

// Get returns the metadata stored under key for target.
func (r *Reflector) Get(key string, target any) any {
	v, _ := r.registry.Get(target, key)
	return v
}

// GetAllAndOverride returns the first metadata value found under key across
// targets, in order. Handler targets are typically listed before classes.
func (r *Reflector) GetAllAndOverride(key string, targets ...any) any {
	for _, t := range targets {
		if v, ok := r.registry.Get(t, key); ok {
			return v
		}
	}
	return nil
}

// GetAllAndMerge collects slice metadata stored under key across targets.
func (r *Reflector) GetAllAndMerge(key string, targets ...any) []any {
	var merged []any
	for _, t := range targets {
		v, ok := r.registry.Get(t, key)
		if !ok {
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice {
			for i := range rv.Len() {
				merged = append(merged, rv.Index(i).Interface())
			}
			continue
		}
		merged = append(merged, v)
	}
	return merged
}
