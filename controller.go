package bundi

import (
	"net/http"
	"reflect"
)

// ControllerDef declares a controller: a constructor, a path prefix and the
// routes served by its methods.
//
// Example:
//
//	var UsersController = bundi.NewController("/users", NewUsersController,
//	    bundi.UseGuards(NewAuthGuard),
//	    bundi.Get("/", "FindAll"),
//	    bundi.Get("/:id", "FindOne", bundi.Args(bundi.Param("id").Pipe(pipes.ParseInt()))),
//	    bundi.Post("/", "Create", bundi.Args(bundi.Body().Pipe(pipes.NewValidationPipe()))),
//	)
type ControllerDef struct {
	prefix    string
	ctor      any
	scope     Scope
	routes    []*RouteDefinition
	enhancers map[string][]any
	metadata  []metadataEntry
}

type metadataEntry struct {
	key   string
	value any
}

// ControllerOption configures a ControllerDef.
type ControllerOption interface {
	applyController(*ControllerDef)
}

// RouteOption configures a RouteDefinition.
type RouteOption interface {
	applyRoute(*RouteDefinition)
}

// NewController creates a controller definition.
func NewController(prefix string, ctor any, opts ...ControllerOption) *ControllerDef {
	c := &ControllerDef{
		prefix:    prefix,
		ctor:      ctor,
		enhancers: make(map[string][]any),
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyController(c)
		}
	}
	return c
}

// Prefix returns the controller path prefix.
func (c *ControllerDef) Prefix() string {
	return c.prefix
}

// Routes returns the controller's route definitions in declaration order.
func (c *ControllerDef) Routes() []*RouteDefinition {
	return append([]*RouteDefinition(nil), c.routes...)
}

type controllerScopeOption Scope

func (o controllerScopeOption) applyController(c *ControllerDef) {
	c.scope = Scope(o)
}

// ControllerScope sets the controller scope.
func ControllerScope(scope Scope) ControllerOption {
	return controllerScopeOption(scope)
}

// RouteDefinition binds an HTTP verb and path to a controller method.
type RouteDefinition struct {
	Method  string
	Path    string
	Handler string

	args      []ParamSpec
	hasArgs   bool
	httpCode  int
	headers   []headerEntry
	redirect  *RedirectResult
	enhancers map[string][]any
	metadata  []metadataEntry
}

type headerEntry struct {
	name  string
	value string
}

// MethodAll registers a route for every HTTP verb.
const MethodAll = "ALL"

func (r *RouteDefinition) applyController(c *ControllerDef) {
	c.routes = append(c.routes, r)
}

func newRoute(method, path, handler string, opts []RouteOption) *RouteDefinition {
	r := &RouteDefinition{
		Method:    method,
		Path:      path,
		Handler:   handler,
		enhancers: make(map[string][]any),
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyRoute(r)
		}
	}
	return r
}

// Get declares a GET route served by the controller method named handler.
func Get(path, handler string, opts ...RouteOption) *RouteDefinition {
	return newRoute(http.MethodGet, path, handler, opts)
}

// Post declares a POST route.
func Post(path, handler string, opts ...RouteOption) *RouteDefinition {
	return newRoute(http.MethodPost, path, handler, opts)
}

// Put declares a PUT route.
func Put(path, handler string, opts ...RouteOption) *RouteDefinition {
	return newRoute(http.MethodPut, path, handler, opts)
}

// Patch declares a PATCH route.
func Patch(path, handler string, opts ...RouteOption) *RouteDefinition {
	return newRoute(http.MethodPatch, path, handler, opts)
}

// Delete declares a DELETE route.
func Delete(path, handler string, opts ...RouteOption) *RouteDefinition {
	return newRoute(http.MethodDelete, path, handler, opts)
}

// Options declares an OPTIONS route.
func Options(path, handler string, opts ...RouteOption) *RouteDefinition {
	return newRoute(http.MethodOptions, path, handler, opts)
}

// Head declares a HEAD route.
func Head(path, handler string, opts ...RouteOption) *RouteDefinition {
	return newRoute(http.MethodHead, path, handler, opts)
}

// All declares a route matching every HTTP verb.
func All(path, handler string, opts ...RouteOption) *RouteDefinition {
	return newRoute(MethodAll, path, handler, opts)
}

type routeOptionFunc func(*RouteDefinition)

func (f routeOptionFunc) applyRoute(r *RouteDefinition) { f(r) }

// HttpCode sets the status code written for successful responses.
func HttpCode(code int) RouteOption {
	return routeOptionFunc(func(r *RouteDefinition) {
		r.httpCode = code
	})
}

// Header sets a response header on successful responses.
func Header(name, value string) RouteOption {
	return routeOptionFunc(func(r *RouteDefinition) {
		r.headers = append(r.headers, headerEntry{name: name, value: value})
	})
}

// Redirect makes the route answer with a redirect. A handler result of type
// RedirectResult, or a map carrying "url"/"statusCode", overrides the target.
func Redirect(url string, statusCode int) RouteOption {
	return routeOptionFunc(func(r *RouteDefinition) {
		if statusCode == 0 {
			statusCode = http.StatusFound
		}
		r.redirect = &RedirectResult{URL: url, StatusCode: statusCode}
	})
}

// Args declares the handler parameters, by position.
func Args(params ...ParamSpec) RouteOption {
	return routeOptionFunc(func(r *RouteDefinition) {
		r.args = append(r.args, params...)
		r.hasArgs = true
	})
}

// RedirectResult describes a redirect response.
type RedirectResult struct {
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
}

// ========================================
// Enhancers and custom metadata
// ========================================

// EnhancerOption attaches guards, interceptors, pipes, filters or metadata.
// It applies to controllers and to routes.
type EnhancerOption struct {
	key    string
	values []any
	meta   *metadataEntry
}

func (o EnhancerOption) applyController(c *ControllerDef) {
	if o.meta != nil {
		c.metadata = append(c.metadata, *o.meta)
		return
	}
	c.enhancers[o.key] = append(c.enhancers[o.key], o.values...)
}

func (o EnhancerOption) applyRoute(r *RouteDefinition) {
	if o.meta != nil {
		r.metadata = append(r.metadata, *o.meta)
		return
	}
	r.enhancers[o.key] = append(r.enhancers[o.key], o.values...)
}

// UseGuards attaches guards: Guard instances or constructors of Guard types.
func UseGuards(guards ...any) EnhancerOption {
	return EnhancerOption{key: MetadataGuards, values: guards}
}

// UseInterceptors attaches interceptors.
func UseInterceptors(interceptors ...any) EnhancerOption {
	return EnhancerOption{key: MetadataInterceptors, values: interceptors}
}

// UsePipes attaches pipes applied to every bound parameter.
func UsePipes(pipes ...any) EnhancerOption {
	return EnhancerOption{key: MetadataPipes, values: pipes}
}

// UseFilters attaches exception filters.
func UseFilters(filters ...any) EnhancerOption {
	return EnhancerOption{key: MetadataFilters, values: filters}
}

// SetMetadata attaches custom metadata readable through Reflector.
func SetMetadata(key string, value any) EnhancerOption {
	return EnhancerOption{meta: &metadataEntry{key: key, value: value}}
}

// ========================================
// Argument descriptors
// ========================================

// ParamKind identifies where a handler argument comes from.
type ParamKind int

const (
	ParamBody ParamKind = iota
	ParamQuery
	ParamPath
	ParamHeader
	ParamRequest
	ParamResponse
	ParamContext
	ParamCustom
)

func (k ParamKind) String() string {
	switch k {
	case ParamBody:
		return "body"
	case ParamQuery:
		return "query"
	case ParamPath:
		return "param"
	case ParamHeader:
		return "header"
	case ParamRequest:
		return "request"
	case ParamResponse:
		return "response"
	case ParamContext:
		return "context"
	case ParamCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// CustomParamFactory extracts a custom argument value.
type CustomParamFactory func(data any, ctx *ExecutionContext) (any, error)

// ParamSpec describes one handler argument.
type ParamSpec struct {
	Kind    ParamKind
	Key     string
	pipes   []any
	factory CustomParamFactory
	data    any
}

// Pipe appends per-parameter pipes. They run before method, controller and
// global pipes.
func (p ParamSpec) Pipe(pipes ...any) ParamSpec {
	p.pipes = append(append([]any(nil), p.pipes...), pipes...)
	return p
}

func firstKey(key []string) string {
	if len(key) > 0 {
		return key[0]
	}
	return ""
}

// Body binds the JSON request body, or one top-level field of it.
func Body(key ...string) ParamSpec {
	return ParamSpec{Kind: ParamBody, Key: firstKey(key)}
}

// Query binds the query string, or one query parameter.
func Query(key ...string) ParamSpec {
	return ParamSpec{Kind: ParamQuery, Key: firstKey(key)}
}

// Param binds the path parameters, or one path parameter.
func Param(key ...string) ParamSpec {
	return ParamSpec{Kind: ParamPath, Key: firstKey(key)}
}

// Headers binds the request headers, or one header.
func Headers(key ...string) ParamSpec {
	return ParamSpec{Kind: ParamHeader, Key: firstKey(key)}
}

// Req binds the *http.Request.
func Req() ParamSpec {
	return ParamSpec{Kind: ParamRequest}
}

// Res binds the http.ResponseWriter.
func Res() ParamSpec {
	return ParamSpec{Kind: ParamResponse}
}

// Ctx binds the request *Context.
func Ctx() ParamSpec {
	return ParamSpec{Kind: ParamContext}
}

// Custom binds the value produced by factory.
func Custom(factory CustomParamFactory, data any) ParamSpec {
	return ParamSpec{Kind: ParamCustom, factory: factory, data: data}
}

// ArgumentMetadata is passed to pipes alongside the value.
type ArgumentMetadata struct {
	Type     ParamKind
	Data     string
	Metatype reflect.Type
	Index    int
}
