package bundi

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Guard decides whether a request may reach its handler. A false result
// responds 403; an error enters the exception filters.
type Guard interface {
	CanActivate(ctx *ExecutionContext) (bool, error)
}

// GuardFunc adapts a function to Guard.
type GuardFunc func(ctx *ExecutionContext) (bool, error)

// CanActivate calls f(ctx).
func (f GuardFunc) CanActivate(ctx *ExecutionContext) (bool, error) {
	return f(ctx)
}

// CallHandler runs the rest of the interceptor chain and the handler.
type CallHandler interface {
	Handle() (any, error)
}

// CallHandlerFunc adapts a function to CallHandler.
type CallHandlerFunc func() (any, error)

// Handle calls f().
func (f CallHandlerFunc) Handle() (any, error) {
	return f()
}

// Interceptor wraps handler execution. Calling next.Handle runs the
// remaining interceptors and the handler; an interceptor may transform the
// result, replace it, or return without calling next.
type Interceptor interface {
	Intercept(ctx *ExecutionContext, next CallHandler) (any, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx *ExecutionContext, next CallHandler) (any, error)

// Intercept calls f(ctx, next).
func (f InterceptorFunc) Intercept(ctx *ExecutionContext, next CallHandler) (any, error) {
	return f(ctx, next)
}

// Pipe transforms or validates one handler argument. A returned error that
// is not an *HTTPException is reported as 400 Bad Request.
type Pipe interface {
	Transform(value any, meta ArgumentMetadata) (any, error)
}

// PipeFunc adapts a function to Pipe.
type PipeFunc func(value any, meta ArgumentMetadata) (any, error)

// Transform calls f(value, meta).
func (f PipeFunc) Transform(value any, meta ArgumentMetadata) (any, error) {
	return f(value, meta)
}

// ExceptionFilter turns an exception into a response. The exception is the
// returned error, or the value passed to panic. The result is written like a
// handler result with the exception's status; a Response is written as is.
type ExceptionFilter interface {
	Catch(exception any, ctx *ExecutionContext) any
}

// ExceptionFilterFunc adapts a function to ExceptionFilter.
type ExceptionFilterFunc func(exception any, ctx *ExecutionContext) any

// Catch calls f(exception, ctx).
func (f ExceptionFilterFunc) Catch(exception any, ctx *ExecutionContext) any {
	return f(exception, ctx)
}

// CatchesExceptions is implemented by filters limited to some exception
// types. A filter catching nothing is a catch-all.
type CatchesExceptions interface {
	Catches() []reflect.Type
}

// CatchBinding limits a filter to exceptions of the given types.
type CatchBinding struct {
	Filter any
	Types  []reflect.Type
}

// Catch restricts filter, an ExceptionFilter or a constructor of one, to the
// listed exception types. Error types match anywhere in the unwrap chain;
// interface types match every implementation.
//
//	bundi.UseFilters(bundi.Catch(NewNotFoundFilter, bundi.TypeOf[*NotFoundError]()))
func Catch(filter any, types ...reflect.Type) CatchBinding {
	return CatchBinding{Filter: filter, Types: types}
}

// catchesException reports whether exception is one of types. An empty list
// matches everything.
func catchesException(types []reflect.Type, exception any) bool {
	if len(types) == 0 {
		return true
	}
	if exception == nil {
		return false
	}
	for _, t := range types {
		if t != nil && matchesType(exception, t) {
			return true
		}
	}
	return false
}

func matchesType(v any, t reflect.Type) bool {
	vt := reflect.TypeOf(v)
	if vt == t {
		return true
	}
	if t.Kind() == reflect.Interface && vt.Implements(t) {
		return true
	}

	switch err := v.(type) {
	case interface{ Unwrap() error }:
		if inner := err.Unwrap(); inner != nil {
			return matchesType(inner, t)
		}
	case interface{ Unwrap() []error }:
		for _, inner := range err.Unwrap() {
			if inner != nil && matchesType(inner, t) {
				return true
			}
		}
	}
	return false
}

// ========================================
// Enhancer resolution
// ========================================

var (
	guardFuncType       = reflect.TypeOf(GuardFunc(nil))
	interceptorFuncType = reflect.TypeOf(InterceptorFunc(nil))
	pipeFuncType        = reflect.TypeOf(PipeFunc(nil))
	filterFuncType      = reflect.TypeOf(ExceptionFilterFunc(nil))
)

// resolveEnhancer turns an enhancer declaration into an instance of T. A
// declaration is an instance of T, a function with the signature of the
// adapter type fnType, or a constructor producing a T. Constructors reuse
// a provider registered for their result type and are instantiated
// Transient-scoped otherwise.
func resolveEnhancer[T any](ctx context.Context, inj *Injector, host *Module, spec any, id ContextID, fnType reflect.Type) (T, error) {
	var zero T
	if spec == nil {
		return zero, fmt.Errorf("enhancer cannot be nil")
	}
	if v, ok := spec.(T); ok {
		return v, nil
	}

	rv := reflect.ValueOf(spec)
	if rv.Kind() != reflect.Func {
		return zero, fmt.Errorf("%T does not implement %s", spec, TypeOf[T]())
	}
	if rv.Type().ConvertibleTo(fnType) {
		if v, ok := rv.Convert(fnType).Interface().(T); ok {
			return v, nil
		}
	}

	instance, err := inj.instantiateClass(ctx, host, spec, id)
	if err != nil {
		return zero, err
	}
	v, ok := instance.(T)
	if !ok {
		return zero, &TypeMismatchError{Expected: TypeOf[T](), Actual: reflect.TypeOf(instance), Context: "enhancer"}
	}
	return v, nil
}

// boundFilter is a resolved filter with the exception types it handles.
type boundFilter struct {
	filter ExceptionFilter
	types  []reflect.Type
}

func resolveFilter(ctx context.Context, inj *Injector, host *Module, spec any, id ContextID) (boundFilter, error) {
	var types []reflect.Type
	switch b := spec.(type) {
	case CatchBinding:
		spec, types = b.Filter, b.Types
	case *CatchBinding:
		if b == nil {
			return boundFilter{}, errors.New("filter cannot be nil")
		}
		spec, types = b.Filter, b.Types
	}

	f, err := resolveEnhancer[ExceptionFilter](ctx, inj, host, spec, id, filterFuncType)
	if err != nil {
		return boundFilter{}, err
	}
	if len(types) == 0 {
		if c, ok := f.(CatchesExceptions); ok {
			types = c.Catches()
		}
	}
	return boundFilter{filter: f, types: types}, nil
}

// enhancerSet holds enhancer declarations of one level: global, controller
// or method.
type enhancerSet struct {
	guards       []any
	interceptors []any
	pipes        []any
	filters      []any
}

func enhancersOf(m map[string][]any) enhancerSet {
	return enhancerSet{
		guards:       m[MetadataGuards],
		interceptors: m[MetadataInterceptors],
		pipes:        m[MetadataPipes],
		filters:      m[MetadataFilters],
	}
}

func (s enhancerSet) clone() enhancerSet {
	return enhancerSet{
		guards:       append([]any(nil), s.guards...),
		interceptors: append([]any(nil), s.interceptors...),
		pipes:        append([]any(nil), s.pipes...),
		filters:      append([]any(nil), s.filters...),
	}
}
