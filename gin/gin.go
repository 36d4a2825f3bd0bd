// Package gin provides a bundi HTTP adapter backed by the Gin web framework.
//
// Example usage:
//
//	app, err := bundi.Create(AppModule, bundi.WithAdapter(bundigin.New(nil)))
package gin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imdat99/bun-di-sub000"
	"github.com/imdat99/bun-di-sub000/internal/routematch"
)

// Config holds the configuration of an engine created by New.
type Config struct {
	// Mode is passed to gin.SetMode when New creates the engine. Empty
	// leaves the process-wide mode unchanged.
	Mode string

	// Middlewares are gin handlers installed before any bundi middleware.
	Middlewares []gin.HandlerFunc
}

// Option configures the adapter.
type Option func(*Config)

// WithMode sets the gin mode, such as gin.ReleaseMode.
func WithMode(mode string) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithMiddleware adds a gin handler run before bundi middleware and routes.
//
// Example:
//
//	bundigin.New(nil, bundigin.WithMiddleware(gin.Logger()))
func WithMiddleware(mw ...gin.HandlerFunc) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw...)
	}
}

type ginContextKey struct{}

// Adapter implements bundi.HTTPAdapter over a gin engine.
type Adapter struct {
	engine *gin.Engine
}

var _ bundi.HTTPAdapter = (*Adapter)(nil)

// New creates an adapter over engine, or over a new engine without default
// middleware when engine is nil.
func New(engine *gin.Engine, opts ...Option) *Adapter {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}

	if engine == nil {
		if cfg.Mode != "" {
			gin.SetMode(cfg.Mode)
		}
		engine = gin.New()
	}
	if len(cfg.Middlewares) > 0 {
		engine.Use(cfg.Middlewares...)
	}
	return &Adapter{engine: engine}
}

// Engine returns the underlying gin engine.
func (a *Adapter) Engine() *gin.Engine {
	return a.engine
}

func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.engine.ServeHTTP(w, r)
}

// Handle registers h. Canonical paths are converted to gin syntax; a
// trailing catch-all becomes *wildcard.
func (a *Adapter) Handle(method, path string, h http.Handler) {
	path = routematch.ToGin(path)
	if method == bundi.MethodAll {
		a.engine.Any(path, wrap(h))
		return
	}
	a.engine.Handle(method, path, wrap(h))
}

// Use installs net/http middleware as a gin handler. A middleware that
// does not call the next handler aborts the gin chain.
func (a *Adapter) Use(mw func(http.Handler) http.Handler) {
	a.engine.Use(func(c *gin.Context) {
		called := false
		next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			called = true
			c.Request = r
			c.Next()
		})
		mw(next).ServeHTTP(c.Writer, c.Request)
		if !called {
			c.Abort()
		}
	})
}

// Param returns the named path parameter. The catch-all parameter is
// returned without its leading slash.
func (a *Adapter) Param(r *http.Request, name string) string {
	c, ok := r.Context().Value(ginContextKey{}).(*gin.Context)
	if !ok {
		return ""
	}
	if name == "*" {
		name = "wildcard"
	}
	v := c.Param(name)
	if name == "wildcard" && len(v) > 0 && v[0] == '/' {
		v = v[1:]
	}
	return v
}

// NotFound serves h for unmatched routes and for paths routed only for
// other methods.
func (a *Adapter) NotFound(h http.Handler) {
	a.engine.HandleMethodNotAllowed = true
	a.engine.NoRoute(wrap(h))
	a.engine.NoMethod(wrap(h))
}

func wrap(h http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ginContextKey{}, c))
		h.ServeHTTP(c.Writer, c.Request)
	}
}
