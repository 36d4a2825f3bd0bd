// Package guards provides authentication and authorization guards.
package guards

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imdat99/bun-di-sub000"
)

// UserKey is the request value holding the verified jwt.MapClaims.
const UserKey = "user"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// JWTGuard admits requests carrying a valid HS256 bearer token. The token's
// claims are stored on the request under UserKey.
type JWTGuard struct {
	secret   []byte
	issuer   string
	audience string
}

// JWTOption configures a JWTGuard.
type JWTOption func(*JWTGuard)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) JWTOption {
	return func(g *JWTGuard) {
		g.issuer = issuer
	}
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) JWTOption {
	return func(g *JWTGuard) {
		g.audience = audience
	}
}

// NewJWTGuard creates a guard verifying tokens signed with secret.
func NewJWTGuard(secret []byte, opts ...JWTOption) *JWTGuard {
	g := &JWTGuard{secret: secret}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CanActivate implements bundi.Guard. Missing or invalid tokens fail with a
// 401 exception.
func (g *JWTGuard) CanActivate(ctx *bundi.ExecutionContext) (bool, error) {
	raw, err := bearerToken(ctx.HTTP().Header("Authorization"))
	if err != nil {
		return false, bundi.NewUnauthorizedException().WithCause(err)
	}

	claims, err := g.Verify(raw)
	if err != nil {
		return false, bundi.NewUnauthorizedException().WithCause(err)
	}

	ctx.HTTP().Set(UserKey, claims)
	return true, nil
}

// Verify parses raw and returns its claims.
func (g *JWTGuard) Verify(raw string) (jwt.MapClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if g.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(g.issuer))
	}
	if g.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(g.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Sign issues an HS256 token for claims. It is the counterpart of Verify.
func (g *JWTGuard) Sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// UserFrom returns the claims stored by JWTGuard.
func UserFrom(c *bundi.Context) (jwt.MapClaims, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(jwt.MapClaims)
	return claims, ok
}
