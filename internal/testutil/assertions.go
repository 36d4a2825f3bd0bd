package testutil

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imdat99/bun-di-sub000"
)

// AssertResolvable checks a singleton of type T can be resolved.
func AssertResolvable[T any](t *testing.T, g bundi.Getter) T {
	t.Helper()
	v, err := bundi.Resolve[T](g)
	require.NoError(t, err, "failed to resolve %s", bundi.TypeOf[T]())
	return v
}

// AssertSameInstance checks token resolves to the same instance under ids.
func AssertSameInstance(t *testing.T, ref *bundi.ModuleRef, token bundi.Token, ids ...bundi.ContextID) {
	t.Helper()
	require.NotEmpty(t, ids)
	first, err := ref.Resolve(context.Background(), token, ids[0])
	require.NoError(t, err)
	for _, id := range ids[1:] {
		v, err := ref.Resolve(context.Background(), token, id)
		require.NoError(t, err)
		assert.Same(t, first, v, "expected the same instance for context %s", id)
	}
}

// AssertDistinctInstances checks token resolves to a different instance
// under each id.
func AssertDistinctInstances(t *testing.T, ref *bundi.ModuleRef, token bundi.Token, ids ...bundi.ContextID) {
	t.Helper()
	seen := make([]any, 0, len(ids))
	for _, id := range ids {
		v, err := ref.Resolve(context.Background(), token, id)
		require.NoError(t, err)
		for _, prev := range seen {
			assert.NotSame(t, prev, v, "expected a fresh instance for context %s", id)
		}
		seen = append(seen, v)
	}
}

// AssertResponse checks the status code and body of rec. Bodies starting
// with { or [ are compared as JSON.
func AssertResponse(t *testing.T, rec *httptest.ResponseRecorder, status int, body string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
	switch {
	case body == "":
	case strings.HasPrefix(body, "{"), strings.HasPrefix(body, "["):
		assert.JSONEq(t, body, rec.Body.String())
	default:
		assert.Equal(t, body, rec.Body.String())
	}
}
