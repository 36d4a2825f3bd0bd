// Package bunditest builds applications for tests, with provider overrides
// and helpers for in-process HTTP requests.
//
//	tm := bunditest.NewTestingModule(bundi.Imports(UsersModule)).
//	    OverrideProvider(bundi.TypeOf[*UsersRepository]()).UseValue(fakeRepo).
//	    MustCompile(t)
//
//	rec := tm.Request(http.MethodGet, "/users/1", nil)
//	bunditest.AssertStatus(t, rec, http.StatusOK)
package bunditest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000"
)

// Builder assembles a testing module.
type Builder struct {
	moduleOpts []bundi.ModuleOption
	overrides  []bundi.Provider
}

// NewTestingModule starts a testing module whose root module is built from
// opts.
func NewTestingModule(opts ...bundi.ModuleOption) *Builder {
	return &Builder{moduleOpts: opts}
}

// Override replaces one provider of the testing module.
type Override struct {
	builder *Builder
	token   bundi.Token
}

// OverrideProvider replaces the provider registered under token wherever it
// is declared.
func (b *Builder) OverrideProvider(token bundi.Token) *Override {
	return &Override{builder: b, token: token}
}

// UseValue provides v.
func (o *Override) UseValue(v any) *Builder {
	return o.use(bundi.Provider{Provide: o.token, UseValue: v})
}

// UseFactory provides the result of factory.
func (o *Override) UseFactory(factory any, inject ...any) *Builder {
	return o.use(bundi.Provider{Provide: o.token, UseFactory: factory, Inject: inject})
}

// UseClass provides an instance built by ctor.
func (o *Override) UseClass(ctor any) *Builder {
	return o.use(bundi.Provider{Provide: o.token, UseClass: ctor})
}

func (o *Override) use(p bundi.Provider) *Builder {
	o.builder.overrides = append(o.builder.overrides, p)
	return o.builder
}

// Compile creates the application. The logger defaults to a no-op logger;
// opts apply after the defaults.
func (b *Builder) Compile(opts ...bundi.Option) (*TestingModule, error) {
	root := bundi.NewModule("TestingModule", b.moduleOpts...)

	all := []bundi.Option{bundi.WithLogger(zap.NewNop())}
	for _, p := range b.overrides {
		all = append(all, bundi.WithProviderOverride(p))
	}
	all = append(all, opts...)

	app, err := bundi.Create(root, all...)
	if err != nil {
		return nil, err
	}
	return &TestingModule{app: app}, nil
}

// MustCompile compiles the module, failing t on error. The application is
// closed when t finishes.
func (b *Builder) MustCompile(t testing.TB, opts ...bundi.Option) *TestingModule {
	t.Helper()
	tm, err := b.Compile(opts...)
	require.NoError(t, err, "compile testing module")
	t.Cleanup(func() {
		if err := tm.Close(); err != nil && !errors.Is(err, bundi.ErrApplicationClosed) {
			t.Errorf("close testing module: %v", err)
		}
	})
	return tm
}

// TestingModule is a compiled application under test.
type TestingModule struct {
	app *bundi.Application
}

// App returns the application.
func (m *TestingModule) App() *bundi.Application {
	return m.app
}

// Get returns the singleton registered under token.
func (m *TestingModule) Get(token bundi.Token, opts ...bundi.GetOption) (any, error) {
	return m.app.Get(token, opts...)
}

// Resolve builds token in a fresh context, whatever its scope.
func (m *TestingModule) Resolve(ctx context.Context, token bundi.Token) (any, error) {
	return m.app.Resolve(ctx, token)
}

// Handler returns the application's HTTP handler.
func (m *TestingModule) Handler() http.Handler {
	return m.app.Handler()
}

// Close shuts the application down.
func (m *TestingModule) Close() error {
	return m.app.Close(context.Background())
}

// Request serves one request in process. A non-nil body is sent as is when
// it is a string, []byte or io.Reader, and JSON encoded otherwise.
func (m *TestingModule) Request(method, path string, body any, headers ...http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, encodeBody(body))
	if body != nil {
		switch body.(type) {
		case string, []byte, io.Reader:
		default:
			req.Header.Set("Content-Type", "application/json")
		}
	}
	for _, h := range headers {
		for name, values := range h {
			for _, v := range values {
				req.Header.Add(name, v)
			}
		}
	}

	rec := httptest.NewRecorder()
	m.app.Handler().ServeHTTP(rec, req)
	return rec
}

func encodeBody(body any) io.Reader {
	switch b := body.(type) {
	case nil:
		return nil
	case string:
		return bytes.NewBufferString(b)
	case []byte:
		return bytes.NewReader(b)
	case io.Reader:
		return b
	}
	data, err := json.Marshal(body)
	if err != nil {
		panic("bunditest: encode request body: " + err.Error())
	}
	return bytes.NewReader(data)
}

// Resolve returns the singleton of type T, failing t on error.
func Resolve[T any](t testing.TB, m *TestingModule) T {
	t.Helper()
	v, err := bundi.Resolve[T](m.app)
	require.NoError(t, err, "resolve %s", bundi.TypeOf[T]())
	return v
}

// AssertStatus checks the response status code.
func AssertStatus(t testing.TB, rec *httptest.ResponseRecorder, status int) bool {
	t.Helper()
	return assert.Equal(t, status, rec.Code, "unexpected status; body: %s", rec.Body.String())
}

// AssertJSON checks the response body is JSON equal to expected.
func AssertJSON(t testing.TB, rec *httptest.ResponseRecorder, expected string) bool {
	t.Helper()
	return assert.JSONEq(t, expected, rec.Body.String())
}

// DecodeJSON decodes the response body into a T, failing t on error.
func DecodeJSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "decode body: %s", rec.Body.String())
	return v
}
