package guards_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000"
	"github.com/imdat99/bun-di-sub000/guards"
)

var secret = []byte("test-secret")

type profileController struct{}

func newProfileController() *profileController { return &profileController{} }

func (p *profileController) Me(c *bundi.Context) any {
	claims, _ := guards.UserFrom(c)
	return map[string]any{"sub": claims["sub"]}
}

func (p *profileController) Admin() string { return "admin area" }

func newApp(t *testing.T, guard *guards.JWTGuard) http.Handler {
	t.Helper()

	ctrl := bundi.NewController("/profile", newProfileController,
		bundi.UseGuards(guard, guards.NewRolesGuard),
		bundi.Get("/", "Me"),
		bundi.Get("/admin", "Admin", guards.Roles("admin")),
	)
	app, err := bundi.Create(bundi.NewModule("app", bundi.Controllers(ctrl)), bundi.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app.Handler()
}

func token(t *testing.T, g *guards.JWTGuard, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	raw, err := g.Sign(claims)
	require.NoError(t, err)
	return raw
}

func get(h http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJWTGuard(t *testing.T) {
	g := guards.NewJWTGuard(secret)
	h := newApp(t, g)

	t.Run("valid token exposes claims", func(t *testing.T) {
		rec := get(h, "/profile", token(t, g, jwt.MapClaims{"sub": "u1"}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sub":"u1"}`, rec.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		rec := get(h, "/profile", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"statusCode":401,"message":"Unauthorized"}`, rec.Body.String())
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := guards.NewJWTGuard([]byte("other"))
		rec := get(h, "/profile", token(t, other, jwt.MapClaims{"sub": "u1"}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		rec := get(h, "/profile", token(t, g, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestJWTGuardVerify(t *testing.T) {
	g := guards.NewJWTGuard(secret, guards.WithIssuer("bundi"), guards.WithAudience("api"))

	claims, err := g.Verify(token(t, g, jwt.MapClaims{"sub": "u1", "iss": "bundi", "aud": "api"}))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])

	_, err = g.Verify(token(t, g, jwt.MapClaims{"sub": "u1", "iss": "someone-else", "aud": "api"}))
	assert.ErrorIs(t, err, guards.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = g.Verify(none)
	assert.Error(t, err)
}

func TestRolesGuard(t *testing.T) {
	g := guards.NewJWTGuard(secret)
	h := newApp(t, g)

	t.Run("route without roles is open", func(t *testing.T) {
		rec := get(h, "/profile", token(t, g, jwt.MapClaims{"sub": "u1"}))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("holder of role", func(t *testing.T) {
		rec := get(h, "/profile/admin", token(t, g, jwt.MapClaims{"sub": "u1", "roles": []string{"admin"}}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "admin area", rec.Body.String())
	})

	t.Run("single role claim", func(t *testing.T) {
		rec := get(h, "/profile/admin", token(t, g, jwt.MapClaims{"sub": "u1", "role": "admin"}))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing role", func(t *testing.T) {
		rec := get(h, "/profile/admin", token(t, g, jwt.MapClaims{"sub": "u1", "roles": []string{"user"}}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"statusCode":403,"message":"Forbidden resource"}`, rec.Body.String())
	})
}
