package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000"
)

// AppBuilder provides a fluent interface for building test applications.
type AppBuilder struct {
	t    testing.TB
	opts []bundi.ModuleOption
	app  []bundi.Option
}

// NewAppBuilder creates a builder for a root module named "AppModule".
func NewAppBuilder(t testing.TB) *AppBuilder {
	return &AppBuilder{t: t}
}

// WithImports adds imported modules.
func (b *AppBuilder) WithImports(modules ...any) *AppBuilder {
	b.opts = append(b.opts, bundi.Imports(modules...))
	return b
}

// WithProviders adds providers to the root module.
func (b *AppBuilder) WithProviders(providers ...any) *AppBuilder {
	b.opts = append(b.opts, bundi.Providers(providers...))
	return b
}

// WithControllers adds controllers to the root module.
func (b *AppBuilder) WithControllers(controllers ...*bundi.ControllerDef) *AppBuilder {
	b.opts = append(b.opts, bundi.Controllers(controllers...))
	return b
}

// WithModuleOptions adds arbitrary root module options.
func (b *AppBuilder) WithModuleOptions(opts ...bundi.ModuleOption) *AppBuilder {
	b.opts = append(b.opts, opts...)
	return b
}

// WithOptions adds application options.
func (b *AppBuilder) WithOptions(opts ...bundi.Option) *AppBuilder {
	b.app = append(b.app, opts...)
	return b
}

// Root returns the root module definition.
func (b *AppBuilder) Root() *bundi.ModuleDef {
	return bundi.NewModule("AppModule", b.opts...)
}

// Build creates the application, failing the test on error. The
// application is closed when the test finishes.
func (b *AppBuilder) Build() *bundi.Application {
	b.t.Helper()
	app, err := b.TryBuild()
	require.NoError(b.t, err)
	b.t.Cleanup(func() {
		_ = app.Close(context.Background())
	})
	return app
}

// TryBuild creates the application and returns any bootstrap error.
func (b *AppBuilder) TryBuild() (*bundi.Application, error) {
	opts := append([]bundi.Option{bundi.WithLogger(zap.NewNop())}, b.app...)
	return bundi.Create(b.Root(), opts...)
}

// Serve runs one request against h.
func Serve(h http.Handler, method, path string, body ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if len(body) > 0 {
		r = strings.NewReader(body[0])
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ServeRequest(h, req)
}

// ServeRequest runs req against h.
func ServeRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
