// Package echo provides a bundi HTTP adapter backed by the Echo web
// framework.
//
// Example usage:
//
//	app, err := bundi.Create(AppModule, bundi.WithAdapter(bundiecho.New(nil)))
package echo

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/imdat99/bun-di-sub000"
	"github.com/imdat99/bun-di-sub000/internal/routematch"
)

// Config holds the configuration of the adapter.
type Config struct {
	// Middlewares are echo middleware installed before any bundi
	// middleware.
	Middlewares []echo.MiddlewareFunc

	// ErrorHandler receives errors returned by echo middleware. Unrouted
	// requests never reach it. If nil, echo's default handler is used.
	ErrorHandler echo.HTTPErrorHandler
}

// Option configures the adapter.
type Option func(*Config)

// WithMiddleware adds echo middleware run before bundi middleware.
func WithMiddleware(mw ...echo.MiddlewareFunc) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw...)
	}
}

// WithErrorHandler sets the handler for errors returned by echo middleware.
func WithErrorHandler(h echo.HTTPErrorHandler) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

type echoContextKey struct{}

// Adapter implements bundi.HTTPAdapter over an echo instance.
type Adapter struct {
	echo     *echo.Echo
	errors   echo.HTTPErrorHandler
	notFound http.Handler
}

var _ bundi.HTTPAdapter = (*Adapter)(nil)

// New creates an adapter over e, or over a new instance with the banner
// hidden when e is nil.
func New(e *echo.Echo, opts ...Option) *Adapter {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}

	if e == nil {
		e = echo.New()
		e.HideBanner = true
		e.HidePort = true
	}
	e.Use(cfg.Middlewares...)

	a := &Adapter{echo: e, errors: cfg.ErrorHandler}
	if a.errors == nil {
		a.errors = e.DefaultHTTPErrorHandler
	}
	e.HTTPErrorHandler = a.handleError
	return a
}

// Echo returns the underlying echo instance.
func (a *Adapter) Echo() *echo.Echo {
	return a.echo
}

func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.echo.ServeHTTP(w, r)
}

// Handle registers h. Canonical paths are converted to echo syntax.
func (a *Adapter) Handle(method, path string, h http.Handler) {
	path = routematch.ToEcho(path)
	if method == bundi.MethodAll {
		a.echo.Any(path, wrap(h))
		return
	}
	a.echo.Add(method, path, wrap(h))
}

// Use installs net/http middleware as echo middleware.
func (a *Adapter) Use(mw func(http.Handler) http.Handler) {
	a.echo.Use(echo.WrapMiddleware(mw))
}

// Param returns the named path parameter.
func (a *Adapter) Param(r *http.Request, name string) string {
	c, ok := r.Context().Value(echoContextKey{}).(echo.Context)
	if !ok {
		return ""
	}
	return c.Param(name)
}

// NotFound serves h for unmatched routes and for paths routed only for
// other methods.
func (a *Adapter) NotFound(h http.Handler) {
	a.notFound = h
	a.echo.RouteNotFound("/*", wrap(h))
}

func (a *Adapter) handleError(err error, c echo.Context) {
	var he *echo.HTTPError
	if a.notFound != nil && errors.As(err, &he) && !c.Response().Committed {
		switch he.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			_ = wrap(a.notFound)(c)
			return
		}
	}
	a.errors(err, c)
}

func wrap(h http.Handler) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request().WithContext(context.WithValue(c.Request().Context(), echoContextKey{}, c))
		c.SetRequest(r)
		h.ServeHTTP(c.Response(), r)
		return nil
	}
}
