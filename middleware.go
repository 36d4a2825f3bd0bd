package bundi

import (
	"context"
	"fmt"
	"net/http"
	"reflect"

	"github.com/imdat99/bun-di-sub000/internal/routematch"
)

// NextFunc continues a middleware chain. It returns the error of the
// downstream middleware, which the caller should return.
type NextFunc func() error

// Middleware runs before routing. Not calling next ends the chain; the
// middleware is then expected to have written a response.
type Middleware interface {
	Use(c *Context, next NextFunc) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(c *Context, next NextFunc) error

// Use calls f(c, next).
func (f MiddlewareFunc) Use(c *Context, next NextFunc) error {
	return f(c, next)
}

var (
	middlewareFuncType = reflect.TypeOf(MiddlewareFunc(nil))
	handlerMiddleware  = reflect.TypeOf((func(http.Handler) http.Handler)(nil))
)

// RouteInfo selects a path for one HTTP method.
type RouteInfo struct {
	Path   string
	Method string
}

// MiddlewareConsumer collects the middleware of a module, passed to the
// function given to Configure.
type MiddlewareConsumer interface {
	// Apply starts a binding of middleware: Middleware instances,
	// MiddlewareFunc-shaped functions, func(http.Handler) http.Handler
	// middleware, or constructors of Middleware types.
	Apply(middleware ...any) MiddlewareConfigProxy
}

// MiddlewareConfigProxy selects the routes of a binding started by Apply.
type MiddlewareConfigProxy interface {
	// Exclude removes routes from the binding.
	Exclude(routes ...any) MiddlewareConfigProxy

	// ForRoutes completes the binding. Routes are path patterns, RouteInfo
	// values or *ControllerDef, which match everything under the
	// controller's prefix. No routes means every route.
	ForRoutes(routes ...any) MiddlewareConsumer
}

type middlewareConfig struct {
	middleware []any
	include    []any
	exclude    []any
}

type middlewareBuilder struct {
	configs []*middlewareConfig
}

func (b *middlewareBuilder) Apply(middleware ...any) MiddlewareConfigProxy {
	return &middlewareProxy{builder: b, config: &middlewareConfig{middleware: middleware}}
}

type middlewareProxy struct {
	builder *middlewareBuilder
	config  *middlewareConfig
}

func (p *middlewareProxy) Exclude(routes ...any) MiddlewareConfigProxy {
	p.config.exclude = append(p.config.exclude, routes...)
	return p
}

func (p *middlewareProxy) ForRoutes(routes ...any) MiddlewareConsumer {
	p.config.include = append(p.config.include, routes...)
	p.builder.configs = append(p.builder.configs, p.config)
	return p.builder
}

// boundMiddleware is a resolved middleware with the routes it applies to.
type boundMiddleware struct {
	module     *Module
	middleware Middleware
	include    []*routematch.Matcher
	exclude    []*routematch.Matcher
}

func (b *boundMiddleware) matches(method, path string) bool {
	for _, m := range b.exclude {
		if m.Match(method, path) {
			return false
		}
	}
	for _, m := range b.include {
		if m.Match(method, path) {
			return true
		}
	}
	return false
}

// middlewareResolver resolves the middleware declared by modules.
type middlewareResolver struct {
	injector *Injector
	prefix   func(path string) string
}

// resolve resolves the middleware of every module, root module first.
func (r *middlewareResolver) resolve(ctx context.Context, modules []*Module) ([]*boundMiddleware, error) {
	var out []*boundMiddleware
	for i := len(modules) - 1; i >= 0; i-- {
		m := modules[i]
		if m.def.configure == nil {
			continue
		}

		builder := &middlewareBuilder{}
		m.def.configure(builder)

		for _, cfg := range builder.configs {
			include, err := r.matchers(cfg.include)
			if err != nil {
				return nil, &ModuleError{Module: m.name, Cause: err}
			}
			if len(cfg.include) == 0 {
				include = []*routematch.Matcher{routematch.Compile("*", "")}
			}
			exclude, err := r.matchers(cfg.exclude)
			if err != nil {
				return nil, &ModuleError{Module: m.name, Cause: err}
			}

			for _, spec := range cfg.middleware {
				mw, err := r.middleware(ctx, m, spec)
				if err != nil {
					return nil, &ModuleError{Module: m.name, Cause: err}
				}
				out = append(out, &boundMiddleware{module: m, middleware: mw, include: include, exclude: exclude})
			}
		}
	}
	return out, nil
}

func (r *middlewareResolver) middleware(ctx context.Context, m *Module, spec any) (Middleware, error) {
	if spec == nil {
		return nil, fmt.Errorf("middleware cannot be nil")
	}
	if mw, ok := spec.(Middleware); ok {
		return mw, nil
	}

	rv := reflect.ValueOf(spec)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%T is not a middleware", spec)
	}
	if rv.Type().ConvertibleTo(middlewareFuncType) {
		return rv.Convert(middlewareFuncType).Interface().(MiddlewareFunc), nil
	}
	if rv.Type().ConvertibleTo(handlerMiddleware) {
		return HTTPMiddleware(rv.Convert(handlerMiddleware).Interface().(func(http.Handler) http.Handler)), nil
	}

	instance, err := r.injector.instantiateClass(ctx, m, spec, StaticContextID)
	if err != nil {
		return nil, err
	}
	mw, ok := instance.(Middleware)
	if !ok {
		return nil, &TypeMismatchError{Expected: TypeOf[Middleware](), Actual: reflect.TypeOf(instance), Context: "middleware"}
	}
	return mw, nil
}

func (r *middlewareResolver) matchers(routes []any) ([]*routematch.Matcher, error) {
	var out []*routematch.Matcher
	for _, route := range routes {
		switch v := route.(type) {
		case string:
			out = append(out, routematch.Compile(r.pattern(v), ""))
		case RouteInfo:
			out = append(out, routematch.Compile(r.pattern(v.Path), v.Method))
		case *ControllerDef:
			if v == nil {
				return nil, fmt.Errorf("middleware route cannot be a nil controller")
			}
			out = append(out, routematch.Compile(r.prefix(v.prefix)+"/*", ""))
		default:
			return nil, fmt.Errorf("unsupported middleware route %T", route)
		}
	}
	return out, nil
}

func (r *middlewareResolver) pattern(path string) string {
	switch path {
	case "*", "/*", "(.*)":
		return path
	}
	return r.prefix(path)
}

// HTTPMiddleware adapts net/http middleware to Middleware.
func HTTPMiddleware(mw func(http.Handler) http.Handler) Middleware {
	return MiddlewareFunc(func(c *Context, next NextFunc) error {
		var nextErr error
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rw, ok := w.(*responseWriter); !ok || rw != c.w {
				c.w = &responseWriter{ResponseWriter: w, status: c.w.status, written: c.w.written}
			}
			c.setRequest(r)
			nextErr = next()
		})).ServeHTTP(c.w, c.r)
		return nextErr
	})
}

// runMiddleware runs chain as a linear sequence ending with final.
func runMiddleware(c *Context, chain []*boundMiddleware, final func()) error {
	var run func(i int) error
	run = func(i int) error {
		if i == len(chain) {
			final()
			return nil
		}
		mw := chain[i].middleware
		_, err := safeCall(func() (any, error) {
			return nil, mw.Use(c, func() error { return run(i + 1) })
		})
		return err
	}
	return run(0)
}
