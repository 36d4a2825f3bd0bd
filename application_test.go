package bundi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/go-chi/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imdat99/bun-di-sub000"
	"github.com/imdat99/bun-di-sub000/internal/testutil"
)

type statusHandler struct{}

func newStatusHandler() *statusHandler { return &statusHandler{} }

func (h *statusHandler) Health() string { return "ok" }

func (h *statusHandler) List() []string { return []string{"a", "b"} }

func statusControllers() []*bundi.ControllerDef {
	return []*bundi.ControllerDef{
		bundi.NewController("/health", newStatusHandler, bundi.Get("/", "Health")),
		bundi.NewController("/items", newStatusHandler, bundi.Get("/", "List")),
	}
}

func TestApplication_GlobalPrefix(t *testing.T) {
	t.Run("applied before init", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).
			WithControllers(statusControllers()...).
			WithOptions(bundi.WithAutoInit(false)).
			Build()
		app.SetGlobalPrefix("/api", "/health")
		require.NoError(t, app.Init(context.Background()))

		assert.ElementsMatch(t, []string{"GET /health", "GET /api/items"}, app.Routes())
		testutil.AssertResponse(t, testutil.Serve(app.Handler(), http.MethodGet, "/api/items"), http.StatusOK, `["a","b"]`)
		testutil.AssertResponse(t, testutil.Serve(app.Handler(), http.MethodGet, "/health"), http.StatusOK, "ok")
		assert.Equal(t, http.StatusNotFound, testutil.Serve(app.Handler(), http.MethodGet, "/items").Code)
	})

	t.Run("ignored after init", func(t *testing.T) {
		t.Parallel()

		app := testutil.NewAppBuilder(t).WithControllers(statusControllers()...).Build()
		app.SetGlobalPrefix("/api")

		assert.Empty(t, app.GlobalPrefix())
		assert.Equal(t, http.StatusOK, testutil.Serve(app.Handler(), http.MethodGet, "/items").Code)
	})

	t.Run("from config", func(t *testing.T) {
		t.Parallel()

		cfg := bundi.DefaultConfig()
		cfg.GlobalPrefix = "v1"
		app := testutil.NewAppBuilder(t).
			WithControllers(statusControllers()...).
			WithOptions(bundi.WithConfig(cfg)).
			Build()

		assert.Equal(t, "v1", app.GlobalPrefix())
		assert.Equal(t, http.StatusOK, testutil.Serve(app.Handler(), http.MethodGet, "/v1/health").Code)
	})
}

func TestApplication_NotFound(t *testing.T) {
	t.Parallel()

	app := testutil.NewAppBuilder(t).WithControllers(statusControllers()...).Build()

	rec := testutil.Serve(app.Handler(), http.MethodGet, "/nope")
	testutil.AssertResponse(t, rec, http.StatusNotFound, `{"statusCode":404,"message":"Cannot GET /nope","error":"Not Found"}`)

	rec = testutil.Serve(app.Handler(), http.MethodPost, "/health")
	testutil.AssertResponse(t, rec, http.StatusNotFound, `{"statusCode":404,"message":"Cannot POST /health","error":"Not Found"}`)
}

func hookedModules(rec *testutil.Recorder) *bundi.ModuleDef {
	inner := bundi.NewModule("InnerModule", bundi.Providers(
		bundi.Factory("inner", func() *testutil.HookedService {
			return &testutil.HookedService{Name: "inner", Recorder: rec}
		}),
	), bundi.Exports("inner"))

	return bundi.NewModule("OuterModule", bundi.Imports(inner), bundi.Providers(
		bundi.Factory("outer", func(*testutil.HookedService) *testutil.HookedService {
			return &testutil.HookedService{Name: "outer", Recorder: rec}
		}, "inner"),
	))
}

func TestApplication_Lifecycle(t *testing.T) {
	t.Parallel()

	rec := testutil.NewRecorder()
	app := testutil.NewAppBuilder(t).WithImports(hookedModules(rec)).Build()

	assert.Equal(t, []string{
		"inner.OnModuleInit",
		"outer.OnModuleInit",
		"inner.OnApplicationBootstrap",
		"outer.OnApplicationBootstrap",
	}, rec.Calls())

	require.NoError(t, app.Close(context.Background()))
	assert.Equal(t, []string{
		"inner.OnModuleInit",
		"outer.OnModuleInit",
		"inner.OnApplicationBootstrap",
		"outer.OnApplicationBootstrap",
		"inner.OnModuleDestroy",
		"outer.OnModuleDestroy",
		"inner.BeforeApplicationShutdown()",
		"outer.BeforeApplicationShutdown()",
		"inner.OnApplicationShutdown()",
		"outer.OnApplicationShutdown()",
		"outer.Close",
		"inner.Close",
	}, rec.Calls())

	t.Run("second close", func(t *testing.T) {
		assert.ErrorIs(t, app.Close(context.Background()), bundi.ErrApplicationClosed)
	})

	t.Run("lookups after close", func(t *testing.T) {
		_, err := app.Get("inner")
		assert.ErrorIs(t, err, bundi.ErrApplicationClosed)
		_, err = app.Resolve(context.Background(), "inner")
		assert.ErrorIs(t, err, bundi.ErrApplicationClosed)
		assert.ErrorIs(t, app.Init(context.Background()), bundi.ErrApplicationClosed)
	})
}

func TestApplication_ShutdownHooks(t *testing.T) {
	rec := testutil.NewRecorder()
	app := testutil.NewAppBuilder(t).WithImports(hookedModules(rec)).Build()
	app.EnableShutdownHooks(syscall.SIGUSR1)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	require.Eventually(t, func() bool {
		calls := rec.Calls()
		return len(calls) > 0 && calls[len(calls)-1] == "inner.Close"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.Calls(), "outer.OnApplicationShutdown(user defined signal 1)")
	assert.ErrorIs(t, app.Close(context.Background()), bundi.ErrApplicationClosed)
}

func TestApplication_HTTPMiddleware(t *testing.T) {
	t.Parallel()

	app := testutil.NewAppBuilder(t).
		WithControllers(statusControllers()...).
		WithOptions(bundi.WithAutoInit(false)).
		Build()
	app.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Powered-By", "bundi")
			next.ServeHTTP(w, r)
		})
	})
	app.EnableCors(cors.Options{
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{http.MethodGet},
	})
	require.NoError(t, app.Init(context.Background()))

	t.Run("net/http middleware", func(t *testing.T) {
		rec := testutil.Serve(app.Handler(), http.MethodGet, "/health")
		assert.Equal(t, "bundi", rec.Header().Get("X-Powered-By"))
	})

	t.Run("cors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://example.com")
		rec := testutil.ServeRequest(app.Handler(), req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec = testutil.ServeRequest(app.Handler(), req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestApplication_CoreProviders(t *testing.T) {
	t.Parallel()

	app := testutil.NewAppBuilder(t).Build()

	self, err := bundi.Resolve[*bundi.Application](app)
	require.NoError(t, err)
	assert.Same(t, app, self)

	cfg, err := bundi.Resolve[*bundi.Config](app)
	require.NoError(t, err)
	assert.Same(t, app.Config(), cfg)

	_, err = bundi.Resolve[*bundi.Reflector](app)
	assert.NoError(t, err)
}

func TestApplication_BootstrapFailure(t *testing.T) {
	t.Parallel()

	cfg := bundi.DefaultConfig()
	cfg.Environment = "staging"
	_, err := testutil.NewAppBuilder(t).WithOptions(bundi.WithConfig(cfg)).TryBuild()
	assert.ErrorContains(t, err, `environment: unknown value "staging"`)

	_, err = bundi.Create(nil)
	assert.ErrorIs(t, err, bundi.ErrModuleNil)
}
