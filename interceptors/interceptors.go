// Package interceptors provides interceptors for logging, metrics, tracing
// and timeouts. Each wraps the handler call of a route.
package interceptors

import (
	"errors"
	"net/http"

	"github.com/imdat99/bun-di-sub000"
	"github.com/imdat99/bun-di-sub000/internal/routematch"
)

// route returns the controller route pattern, without the global prefix.
func route(ctx *bundi.ExecutionContext) string {
	if ctx.Class() == nil || ctx.Route() == nil {
		return ctx.HTTP().Path()
	}
	return routematch.Join(ctx.Class().Prefix(), ctx.Route().Path)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// status is the status code err will produce under the default handler.
func status(err error) int {
	var httpErr *bundi.HTTPException
	if errors.As(err, &httpErr) {
		return httpErr.Status()
	}
	return http.StatusInternalServerError
}
