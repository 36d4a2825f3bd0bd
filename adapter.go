package bundi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/imdat99/bun-di-sub000/internal/routematch"
)

// HTTPAdapter is the router the application registers routes on. Paths
// passed to Handle are canonical: ":name" segments for parameters and a
// trailing "*" for a catch-all. Implementations convert them to their own
// syntax.
type HTTPAdapter interface {
	http.Handler

	// Handle registers h for method and path.
	Handle(method, path string, h http.Handler)

	// Use adds middleware run before routing. It is called before any
	// route is registered.
	Use(mw func(http.Handler) http.Handler)

	// Param returns the path parameter name of a routed request.
	Param(r *http.Request, name string) string

	// NotFound sets the handler for unmatched requests, including requests
	// whose path is routed for other methods only.
	NotFound(h http.Handler)
}

// ChiAdapter is the default HTTPAdapter, backed by a chi router.
type ChiAdapter struct {
	mux *chi.Mux
}

var _ HTTPAdapter = (*ChiAdapter)(nil)

// NewChiAdapter creates an adapter over mux, or over a new router when mux
// is nil.
func NewChiAdapter(mux *chi.Mux) *ChiAdapter {
	if mux == nil {
		mux = chi.NewRouter()
	}
	return &ChiAdapter{mux: mux}
}

// Router returns the underlying chi router.
func (a *ChiAdapter) Router() *chi.Mux {
	return a.mux
}

func (a *ChiAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *ChiAdapter) Handle(method, path string, h http.Handler) {
	path = routematch.ToChi(path)
	if method == MethodAll {
		a.mux.Handle(path, h)
		return
	}
	a.mux.Method(method, path, h)
}

func (a *ChiAdapter) Use(mw func(http.Handler) http.Handler) {
	a.mux.Use(mw)
}

func (a *ChiAdapter) Param(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func (a *ChiAdapter) NotFound(h http.Handler) {
	a.mux.NotFound(h.ServeHTTP)
	a.mux.MethodNotAllowed(h.ServeHTTP)
}
