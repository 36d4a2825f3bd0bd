package echo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000"
	bundiecho "github.com/imdat99/bun-di-sub000/echo"
	"github.com/imdat99/bun-di-sub000/pipes"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type itemsController struct{}

func newItemsController() *itemsController { return &itemsController{} }

func (c *itemsController) FindOne(id int) item { return item{ID: id, Name: "widget"} }

func (c *itemsController) Create(body item) item { return body }

func (c *itemsController) Files(path string) string { return path }

func newApp(t *testing.T, adapter bundi.HTTPAdapter) http.Handler {
	t.Helper()

	ctrl := bundi.NewController("/items", newItemsController,
		bundi.Get("/:id", "FindOne", bundi.Args(bundi.Param("id").Pipe(pipes.ParseInt()))),
		bundi.Post("/", "Create", bundi.Args(bundi.Body())),
		bundi.Get("/files/*", "Files", bundi.Args(bundi.Param("*"))),
	)
	root := bundi.NewModule("app",
		bundi.Controllers(ctrl),
		bundi.Configure(func(consumer bundi.MiddlewareConsumer) {
			consumer.Apply(bundi.MiddlewareFunc(func(c *bundi.Context, next bundi.NextFunc) error {
				c.SetHeader("X-Middleware", "ran")
				return next()
			})).ForRoutes()
		}),
	)

	app, err := bundi.Create(root, bundi.WithAdapter(adapter), bundi.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app.Handler()
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdapter(t *testing.T) {
	h := newApp(t, bundiecho.New(nil))

	t.Run("path parameters", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/items/7", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":7,"name":"widget"}`, rec.Body.String())
		assert.Equal(t, "ran", rec.Header().Get("X-Middleware"))
	})

	t.Run("pipe failure", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/items/abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("body", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/items", `{"id":1,"name":"gear"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"id":1,"name":"gear"}`, rec.Body.String())
	})

	t.Run("catch-all", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/items/files/a/b.txt", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "a/b.txt", rec.Body.String())
	})

	t.Run("not found", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/nowhere", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"statusCode":404,"message":"Cannot GET /nowhere","error":"Not Found"}`, rec.Body.String())
	})

	t.Run("method not routed", func(t *testing.T) {
		rec := serve(h, http.MethodDelete, "/items/7", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdapterOptions(t *testing.T) {
	var seen bool
	adapter := bundiecho.New(nil, bundiecho.WithMiddleware(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			seen = true
			return next(c)
		}
	}))
	h := newApp(t, adapter)

	rec := serve(h, http.MethodGet, "/items/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, seen)
	assert.NotNil(t, adapter.Echo())
}
