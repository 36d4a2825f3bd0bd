// Package fiber provides a bundi HTTP adapter backed by the Fiber web
// framework. Requests cross between net/http and fasthttp through Fiber's
// adaptor middleware.
//
// Example usage:
//
//	app, err := bundi.Create(AppModule, bundi.WithAdapter(bundifiber.New(nil)))
package fiber

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/imdat99/bun-di-sub000"
	"github.com/imdat99/bun-di-sub000/internal/routematch"
)

// paramsKey stores the matched path parameters as a fasthttp user value,
// which the converted request context exposes.
type paramsKey struct{}

// Config holds the configuration of an app created by New.
type Config struct {
	// Fiber configures the app New creates.
	Fiber fiber.Config

	// Middlewares are fiber handlers installed before any bundi middleware.
	Middlewares []fiber.Handler
}

// Option configures the adapter.
type Option func(*Config)

// WithConfig sets the configuration of the app New creates.
func WithConfig(cfg fiber.Config) Option {
	return func(c *Config) {
		c.Fiber = cfg
	}
}

// WithMiddleware adds fiber handlers run before bundi middleware and routes.
func WithMiddleware(mw ...fiber.Handler) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw...)
	}
}

// Adapter implements bundi.HTTPAdapter over a fiber app. Middleware added
// through Use wraps every handler registered after it.
type Adapter struct {
	app *fiber.App

	mu         sync.Mutex
	middleware []func(http.Handler) http.Handler

	once    sync.Once
	handler http.HandlerFunc
}

var _ bundi.HTTPAdapter = (*Adapter)(nil)

// New creates an adapter over app, or over a new app when app is nil.
func New(app *fiber.App, opts ...Option) *Adapter {
	cfg := &Config{Fiber: fiber.Config{DisableStartupMessage: true}}
	for _, opt := range opts {
		opt(cfg)
	}

	if app == nil {
		app = fiber.New(cfg.Fiber)
	}
	for _, mw := range cfg.Middlewares {
		app.Use(mw)
	}
	return &Adapter{app: app}
}

// App returns the underlying fiber app.
func (a *Adapter) App() *fiber.App {
	return a.app
}

func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(func() {
		a.handler = adaptor.FiberApp(a.app)
	})
	a.handler(w, r)
}

// Handle registers h. Path parameters are copied out of the fiber context
// before h runs, since fiber reuses its buffers.
func (a *Adapter) Handle(method, path string, h http.Handler) {
	names := routematch.ParamNames(path)
	if routematch.HasWildcard(path) {
		names = append(names, "*")
	}

	next := adaptor.HTTPHandler(a.wrap(h))
	handler := func(c *fiber.Ctx) error {
		params := make(map[string]string, len(names))
		for _, name := range names {
			params[name] = strings.Clone(c.Params(name))
		}
		c.Context().SetUserValue(paramsKey{}, params)
		return next(c)
	}

	path = routematch.ToFiber(path)
	if method == bundi.MethodAll {
		a.app.All(path, handler)
		return
	}
	a.app.Add(method, path, handler)
}

// Use records net/http middleware for the handlers registered next.
func (a *Adapter) Use(mw func(http.Handler) http.Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.middleware = append(a.middleware, mw)
}

// Param returns the named path parameter of the matched route.
func (a *Adapter) Param(r *http.Request, name string) string {
	params, _ := r.Context().Value(paramsKey{}).(map[string]string)
	return params[name]
}

// NotFound serves h for every request no route handled, including paths
// routed only for other methods.
func (a *Adapter) NotFound(h http.Handler) {
	a.app.Use(adaptor.HTTPHandler(a.wrap(h)))
}

// wrap applies the recorded middleware to h, the first added outermost.
func (a *Adapter) wrap(h http.Handler) http.Handler {
	a.mu.Lock()
	mw := append([]func(http.Handler) http.Handler(nil), a.middleware...)
	a.mu.Unlock()

	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
