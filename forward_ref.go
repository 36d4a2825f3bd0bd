package bundi

import (
	"context"
	"reflect"
	"sync"
)

// Ref is a lazily resolved reference to a provider of type T. Declaring a
// Ref[T] constructor parameter (or tagged field) instead of T breaks a
// construction cycle: the Ref is injected immediately and the target is
// resolved on the first call to Get.
//
// Example:
//
//	type CatsService struct {
//	    dogs bundi.Ref[*DogsService]
//	}
//
//	func NewCatsService(dogs bundi.Ref[*DogsService]) *CatsService {
//	    return &CatsService{dogs: dogs}
//	}
//
//	func (s *CatsService) Bark() (string, error) {
//	    dogs, err := s.dogs.Get()
//	    if err != nil {
//	        return "", err
//	    }
//	    return dogs.Bark(), nil
//	}
type Ref[T any] struct {
	h *lazyHandle
}

// Get resolves the referenced provider. The first successful result is kept
// by the Ref.
func (r Ref[T]) Get() (T, error) {
	var zero T
	if r.h == nil {
		return zero, &ForwardRefError{Token: TypeOf[T](), Reason: "reference is not bound to an injector"}
	}

	v, err := r.h.get()
	if err != nil || v == nil {
		return zero, err
	}

	out, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{
			Expected: TypeOf[T](),
			Actual:   reflect.TypeOf(v),
			Context:  "forward reference to " + tokenName(r.h.token),
		}
	}
	return out, nil
}

// MustGet is Get for callers that treat a failed resolution as fatal.
func (r Ref[T]) MustGet() T {
	v, err := r.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Bound reports whether the Ref was created by the injector.
func (r Ref[T]) Bound() bool {
	return r.h != nil
}

func (r *Ref[T]) bindRef(h *lazyHandle) {
	r.h = h
}

func (Ref[T]) refType() reflect.Type {
	return TypeOf[T]()
}

type refBinder interface {
	bindRef(h *lazyHandle)
}

type refTyper interface {
	refType() reflect.Type
}

var refTyperType = reflect.TypeOf((*refTyper)(nil)).Elem()

// refTarget returns T when t is Ref[T].
func refTarget(t reflect.Type) (reflect.Type, bool) {
	if t == nil || t.Kind() != reflect.Struct || !t.Implements(refTyperType) {
		return nil, false
	}
	typer, ok := reflect.Zero(t).Interface().(refTyper)
	if !ok {
		return nil, false
	}
	return typer.refType(), true
}

// newRef returns a Ref value of type t bound to h.
func newRef(t reflect.Type, h *lazyHandle) (reflect.Value, bool) {
	rv := reflect.New(t)
	binder, ok := rv.Interface().(refBinder)
	if !ok {
		return reflect.Value{}, false
	}
	binder.bindRef(h)
	return rv.Elem(), true
}

// lazyHandle stores what is needed to resolve a forward reference later:
// the token, the module it is resolved from and the context id.
type lazyHandle struct {
	injector *Injector
	module   *Module
	token    Token
	optional bool
	id       ContextID
	ctx      context.Context

	mu    sync.Mutex
	done  bool
	value any
}

func (h *lazyHandle) get() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return h.value, nil
	}

	v, err := h.injector.resolveForward(h)
	if err != nil {
		return nil, err
	}

	h.value, h.done = v, true
	return v, nil
}
