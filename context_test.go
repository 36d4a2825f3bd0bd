package bundi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Request(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/users/42?sort=name&tag=a&tag=b", strings.NewReader(`{"name":"ada"}`))
	req.Header.Set("X-Tenant", "acme")

	params := map[string]string{"id": "42"}
	c := newContext(httptest.NewRecorder(), req, func(_ *http.Request, name string) string {
		return params[name]
	})
	c.names = []string{"id"}

	assert.Same(t, c, RequestFromContext(c.Context()))
	assert.Nil(t, RequestFromContext(context.Background()))
	assert.NotEmpty(t, c.ID())

	assert.Equal(t, http.MethodPost, c.Method())
	assert.Equal(t, "/users/42", c.Path())
	assert.Equal(t, "42", c.Param("id"))
	assert.Equal(t, map[string]string{"id": "42"}, c.Params())
	assert.Equal(t, "name", c.Query("sort"))
	assert.Equal(t, []string{"a", "b"}, c.Queries()["tag"])
	assert.Equal(t, "acme", c.Header("X-Tenant"))

	t.Run("body is read once", func(t *testing.T) {
		var first, second struct{ Name string }
		require.NoError(t, c.Bind(&first))
		require.NoError(t, c.Bind(&second))
		assert.Equal(t, "ada", first.Name)
		assert.Equal(t, first, second)
	})

	t.Run("values", func(t *testing.T) {
		_, ok := c.Get("user")
		assert.False(t, ok)
		c.Set("user", "ada")
		v, ok := c.Get("user")
		assert.True(t, ok)
		assert.Equal(t, "ada", v)
	})

	t.Run("set context keeps the request context", func(t *testing.T) {
		type key struct{}
		c.SetContext(context.WithValue(c.Context(), key{}, "v"))
		assert.Equal(t, "v", c.Context().Value(key{}))
		assert.Same(t, c, RequestFromContext(c.Context()))
	})
}

func TestContext_Bind(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty body", "", 0},
		{"invalid json", "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c := newContext(httptest.NewRecorder(), req, nil)

			var v map[string]any
			err := c.Bind(&v)
			if tt.status == 0 {
				assert.NoError(t, err)
				assert.Nil(t, v)
				return
			}
			var httpErr *HTTPException
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.Status())
			assert.Equal(t, "Invalid JSON body", httpErr.Error())
		})
	}
}

func TestContext_Responses(t *testing.T) {
	t.Run("writer records the first status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := newContext(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)

		assert.False(t, c.Written())
		require.NoError(t, c.SetHeader("X-Trace", "1").JSON(http.StatusAccepted, map[string]int{"n": 1}))
		assert.True(t, c.Written())
		assert.Equal(t, http.StatusAccepted, c.StatusCode())

		c.w.WriteHeader(http.StatusTeapot)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-Trace"))
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"n":1}`, rec.Body.String())
	})

	t.Run("text", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := newContext(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
		require.NoError(t, c.Text(http.StatusOK, "hi"))
		assert.Equal(t, "hi", rec.Body.String())
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	})

	t.Run("redirect", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := newContext(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
		require.NoError(t, c.Redirect("/next", 0))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/next", rec.Header().Get("Location"))

		assert.Error(t, RedirectResult{}.Write(httptest.NewRecorder()))
	})

	t.Run("no content", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, NoContent().Write(rec))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestExceptions(t *testing.T) {
	t.Run("string response", func(t *testing.T) {
		e := NewNotFoundException("user 7 not found")
		assert.Equal(t, http.StatusNotFound, e.Status())
		assert.Equal(t, "user 7 not found", e.Error())
		assert.Equal(t, map[string]any{"statusCode": 404, "message": "user 7 not found"}, e.Body())
	})

	t.Run("default message", func(t *testing.T) {
		e := NewServiceUnavailableException()
		assert.Equal(t, "Service Unavailable", e.Error())
	})

	t.Run("object response", func(t *testing.T) {
		body := map[string]any{"message": []string{"a", "b"}, "code": "E1"}
		e := NewBadRequestException(body)
		assert.Equal(t, body, e.Body())
		assert.Equal(t, "[a b]", e.Error())
	})

	t.Run("cause", func(t *testing.T) {
		cause := errors.New("db down")
		e := NewInternalServerErrorException().WithCause(cause)
		assert.ErrorIs(t, e, cause)
	})

	t.Run("default bodies", func(t *testing.T) {
		status, body := defaultExceptionBody(NewGoneException())
		assert.Equal(t, http.StatusGone, status)
		assert.Equal(t, map[string]any{"statusCode": 410, "message": "Gone"}, body)

		status, body = defaultExceptionBody(errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "boom", body.(map[string]any)["cause"])

		_, body = defaultExceptionBody([]any{1, "two"})
		assert.Equal(t, `[1,"two"]`, body.(map[string]any)["error"])
	})
}
