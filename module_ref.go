package bundi

import (
	"context"
	"reflect"
)

// ModuleRef gives programmatic access to the providers visible from one
// module. Declare a *ModuleRef constructor parameter to receive the
// reference bound to the provider's own module.
type ModuleRef struct {
	module   *Module
	injector *Injector
}

// GetOption configures ModuleRef.Get.
type GetOption func(*getOptions)

type getOptions struct {
	strict bool
}

// Strict limits the lookup to the providers visible from the module: its
// own providers, the exports of its imports and of global modules.
func Strict() GetOption {
	return func(o *getOptions) {
		o.strict = true
	}
}

// Module returns the module the reference is bound to.
func (r *ModuleRef) Module() *Module {
	return r.module
}

func (r *ModuleRef) find(token Token, strict bool) (*InstanceWrapper, error) {
	if err := validateToken(token); err != nil {
		return nil, err
	}

	if w, ok := r.injector.lookup(r.module, token); ok {
		return w, nil
	}
	if !strict {
		if w, ok := r.injector.container.find(token); ok {
			return w, nil
		}
	}
	return nil, &UnknownElementError{Token: token}
}

// Get returns the singleton instance registered under token. Request and
// Transient providers fail with *InvalidScopeError; use Resolve for those.
func (r *ModuleRef) Get(token Token, opts ...GetOption) (any, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	w, err := r.find(token, o.strict)
	if err != nil {
		return nil, err
	}
	if w.scope != Singleton {
		return nil, &InvalidScopeError{Token: token, Scope: w.scope}
	}
	if w.isInflight(StaticContextID) {
		return nil, &ForwardRefError{Token: token, Reason: "provider is still being constructed"}
	}

	return r.injector.loadInstance(context.Background(), w, StaticContextID, nil)
}

// Resolve returns the instance registered under token for context id,
// whatever its scope. An empty id resolves under a fresh context id, so
// Request-scoped providers yield a new instance. Instances created under a
// fresh id are not retained by the container.
func (r *ModuleRef) Resolve(ctx context.Context, token Token, id ContextID) (any, error) {
	if id == "" {
		id = NewContextID()
		defer r.injector.release(id)
	}

	w, err := r.find(token, false)
	if err != nil {
		return nil, err
	}
	if w.scope != Transient && w.isInflight(id) {
		return nil, &ForwardRefError{Token: token, Reason: "provider is still being constructed"}
	}

	return r.injector.loadInstance(ctx, w, id, nil)
}

// Create instantiates ctor with dependencies resolved from the module. The
// instance is not registered or cached.
func (r *ModuleRef) Create(ctx context.Context, ctor any) (any, error) {
	w, err := r.injector.scanner.classWrapper(r.module, nil, ctor, Transient)
	if err != nil {
		return nil, err
	}
	id := NewContextID()
	defer r.injector.release(id)
	return r.injector.loadInstance(ctx, w, id, nil)
}

// Getter is implemented by *ModuleRef and *Application.
type Getter interface {
	Get(token Token, opts ...GetOption) (any, error)
}

// Resolve returns the singleton of type T.
//
//	users, err := bundi.Resolve[*UsersService](app)
func Resolve[T any](g Getter, opts ...GetOption) (T, error) {
	return ResolveToken[T](g, TypeOf[T](), opts...)
}

// ResolveToken returns the singleton registered under token as a T.
//
//	key, err := bundi.ResolveToken[string](app, "API_KEY")
func ResolveToken[T any](g Getter, token Token, opts ...GetOption) (T, error) {
	var zero T

	v, err := g.Get(token, opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}

	out, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{Expected: TypeOf[T](), Actual: reflect.TypeOf(v), Context: "provider " + tokenName(token)}
	}
	return out, nil
}

// MustResolve is Resolve that panics on failure.
func MustResolve[T any](g Getter, opts ...GetOption) T {
	v, err := Resolve[T](g, opts...)
	if err != nil {
		panic(err)
	}
	return v
}
