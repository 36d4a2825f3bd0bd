package bundi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imdat99/bun-di-sub000"
	"github.com/imdat99/bun-di-sub000/internal/testutil"
)

type trailHandler struct{}

func newTrailHandler() *trailHandler { return &trailHandler{} }

func (h *trailHandler) Trail(c *bundi.Context) any {
	trail, _ := c.Get("trail")
	return map[string]any{"trail": trail}
}

func appendTrail(name string) bundi.MiddlewareFunc {
	return func(c *bundi.Context, next bundi.NextFunc) error {
		trail, _ := c.Get("trail")
		list, _ := trail.([]string)
		c.Set("trail", append(list, name))
		return next()
	}
}

type auditMiddleware struct {
	calls *testutil.Recorder
}

func newAuditMiddleware(r *testutil.Recorder) *auditMiddleware {
	return &auditMiddleware{calls: r}
}

func (m *auditMiddleware) Use(c *bundi.Context, next bundi.NextFunc) error {
	m.calls.Record("%s %s", c.Method(), c.Path())
	return next()
}

func trailRoutes() []bundi.ControllerOption {
	return []bundi.ControllerOption{
		bundi.Get("/", "Trail"),
		bundi.Post("/", "Trail", bundi.HttpCode(http.StatusOK)),
		bundi.Get("/:id", "Trail"),
	}
}

func TestMiddleware_Order(t *testing.T) {
	t.Parallel()

	feature := bundi.NewModule("FeatureModule",
		bundi.Controllers(bundi.NewController("/feature", newTrailHandler, trailRoutes()...)),
		bundi.Configure(func(consumer bundi.MiddlewareConsumer) {
			consumer.Apply(appendTrail("feature")).ForRoutes()
		}),
	)

	app := testutil.NewAppBuilder(t).
		WithImports(feature).
		WithModuleOptions(bundi.Configure(func(consumer bundi.MiddlewareConsumer) {
			consumer.Apply(appendTrail("root-1"), appendTrail("root-2")).ForRoutes("*")
		})).
		Build()

	rec := testutil.Serve(app.Handler(), http.MethodGet, "/feature")
	testutil.AssertResponse(t, rec, http.StatusOK, `{"trail":["root-1","root-2","feature"]}`)
}

func TestMiddleware_Routes(t *testing.T) {
	t.Parallel()

	users := bundi.NewController("/users", newTrailHandler, trailRoutes()...)
	orders := bundi.NewController("/orders", newTrailHandler, trailRoutes()...)

	app := testutil.NewAppBuilder(t).
		WithProviders(testutil.NewRecorder).
		WithControllers(users, orders).
		WithModuleOptions(bundi.Configure(func(consumer bundi.MiddlewareConsumer) {
			consumer.Apply(appendTrail("users")).ForRoutes(users)
			consumer.Apply(appendTrail("get-orders")).
				Exclude("/orders/:id").
				ForRoutes(bundi.RouteInfo{Path: "/orders", Method: http.MethodGet}, "/orders/:id")
			consumer.Apply(newAuditMiddleware).Exclude(bundi.RouteInfo{Path: "/users/*", Method: http.MethodPost}).ForRoutes()
		})).
		WithOptions(bundi.WithAutoInit(false)).
		Build()
	app.SetGlobalPrefix("/api")
	require.NoError(t, app.Init(context.Background()))
	h := app.Handler()

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/users", `{"trail":["users"]}`},
		{http.MethodGet, "/api/users/7", `{"trail":["users"]}`},
		{http.MethodPost, "/api/users", `{"trail":["users"]}`},
		{http.MethodGet, "/api/orders", `{"trail":["get-orders"]}`},
		{http.MethodPost, "/api/orders", `{"trail":null}`},
		{http.MethodGet, "/api/orders/7", `{"trail":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := testutil.Serve(h, tt.method, tt.path)
			testutil.AssertResponse(t, rec, http.StatusOK, tt.body)
		})
	}

	calls := testutil.AssertResolvable[*testutil.Recorder](t, app)
	assert.NotContains(t, calls.Calls(), "POST /api/users")
	assert.Contains(t, calls.Calls(), "GET /api/users")
	assert.Contains(t, calls.Calls(), "POST /api/orders")
}

func TestMiddleware_Failures(t *testing.T) {
	t.Parallel()

	app := testutil.NewAppBuilder(t).
		WithControllers(bundi.NewController("/secure", newTrailHandler, trailRoutes()...)).
		WithModuleOptions(bundi.Configure(func(consumer bundi.MiddlewareConsumer) {
			consumer.Apply(bundi.MiddlewareFunc(func(c *bundi.Context, next bundi.NextFunc) error {
				switch c.Header("X-Mode") {
				case "deny":
					return bundi.NewForbiddenException()
				case "panic":
					panic("middleware exploded")
				case "answer":
					return c.JSON(http.StatusTeapot, map[string]string{"answered": "early"})
				}
				return next()
			})).ForRoutes()
		})).
		Build()

	serve := func(mode string) (int, string) {
		req := httptest.NewRequest(http.MethodGet, "/secure", nil)
		req.Header.Set("X-Mode", mode)
		rec := testutil.ServeRequest(app.Handler(), req)
		return rec.Code, rec.Body.String()
	}

	code, body := serve("deny")
	assert.Equal(t, http.StatusForbidden, code)
	assert.JSONEq(t, `{"statusCode":403,"message":"Forbidden"}`, body)

	code, body = serve("panic")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body, "middleware exploded")

	code, body = serve("answer")
	assert.Equal(t, http.StatusTeapot, code)
	assert.JSONEq(t, `{"answered":"early"}`, body)

	code, _ = serve("")
	assert.Equal(t, http.StatusOK, code)
}

func TestMiddleware_HTTPAdapter(t *testing.T) {
	t.Parallel()

	app := testutil.NewAppBuilder(t).
		WithControllers(bundi.NewController("/wrapped", newTrailHandler, trailRoutes()...)).
		WithModuleOptions(bundi.Configure(func(consumer bundi.MiddlewareConsumer) {
			consumer.Apply(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("X-Wrapped", "true")
					next.ServeHTTP(w, r)
				})
			}, appendTrail("after-http")).ForRoutes("/wrapped")
		})).
		Build()

	rec := testutil.Serve(app.Handler(), http.MethodGet, "/wrapped")
	testutil.AssertResponse(t, rec, http.StatusOK, `{"trail":["after-http"]}`)
	assert.Equal(t, "true", rec.Header().Get("X-Wrapped"))
}
