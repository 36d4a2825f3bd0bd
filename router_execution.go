package bundi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"runtime/debug"
	"strconv"

	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000/internal/reflection"
	"github.com/imdat99/bun-di-sub000/internal/routematch"
)

var (
	contextPtrType  = TypeOf[*Context]()
	execContextType = TypeOf[*ExecutionContext]()
	requestPtrType  = TypeOf[*http.Request]()
	responseType    = TypeOf[http.ResponseWriter]()
	urlValuesType   = TypeOf[url.Values]()
)

const forbiddenMessage = "Forbidden resource"

// hosted is an enhancer declaration with the module it resolves from.
type hosted struct {
	spec any
	host *Module
}

// routerExecution runs the request pipeline of controller routes.
type routerExecution struct {
	injector *Injector
	logger   *zap.Logger
	root     *Module
	globals  func() enhancerSet
	param    func(r *http.Request, name string) string
}

// routeHandler serves one route of one controller.
type routeHandler struct {
	exec    *routerExecution
	wrapper *InstanceWrapper
	def     *ControllerDef
	route   *RouteDefinition
	sig     *reflection.FuncInfo
	path    string
	names   []string
	class   enhancerSet
	method  enhancerSet
}

func (e *routerExecution) newRouteHandler(w *InstanceWrapper, def *ControllerDef, route *RouteDefinition, path string) (*routeHandler, error) {
	sig, err := handlerSignature(w.fn.Result, route.Handler)
	if err != nil {
		return nil, err
	}

	h := &routeHandler{
		exec:    e,
		wrapper: w,
		def:     def,
		route:   route,
		sig:     sig,
		path:    path,
		names:   routematch.ParamNames(path),
		class:   enhancersOf(def.enhancers),
		method:  enhancersOf(route.enhancers),
	}

	if route.hasArgs {
		if len(route.args) != len(sig.Params) {
			return nil, fmt.Errorf("handler %s declares %d arguments but takes %d", route.Handler, len(route.args), len(sig.Params))
		}
		return h, nil
	}
	for _, p := range sig.Params {
		if !bindableByType(p.Type) {
			return nil, fmt.Errorf("handler %s: parameter %d of type %s needs an Args declaration", route.Handler, p.Index, p.Type)
		}
	}
	return h, nil
}

// handlerSignature analyzes method name of controller type t, without its
// receiver.
func handlerSignature(t reflect.Type, name string) (*reflection.FuncInfo, error) {
	if t == nil {
		return nil, fmt.Errorf("controller constructor returns no value")
	}
	m, ok := t.MethodByName(name)
	if !ok {
		return nil, fmt.Errorf("handler method %q not found on %s", name, t)
	}

	mt := m.Type
	if t.Kind() != reflect.Interface {
		in := make([]reflect.Type, 0, mt.NumIn()-1)
		for i := 1; i < mt.NumIn(); i++ {
			in = append(in, mt.In(i))
		}
		out := make([]reflect.Type, mt.NumOut())
		for i := range mt.NumOut() {
			out[i] = mt.Out(i)
		}
		mt = reflect.FuncOf(in, out, mt.IsVariadic())
	}
	return reflection.AnalyzeValue(reflect.Zero(mt))
}

func bindableByType(t reflect.Type) bool {
	switch t {
	case contextPtrType, execContextType, requestPtrType, responseType, contextToken:
		return true
	}
	return false
}

func (h *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := RequestFromContext(r.Context())
	if c == nil {
		c = newContext(w, r, h.exec.param)
		defer h.exec.injector.evict(context.WithoutCancel(c.Context()), c.ID())
	} else {
		c.setRequest(r)
	}
	c.names = h.names

	ec := newExecutionContext(c, h.def, h.route)
	if err := h.run(ec); err != nil {
		h.exec.handleException(ec, h.filters(), err)
	}
}

func (h *routeHandler) levels() (global, class, method enhancerSet) {
	return h.exec.globals(), h.class, h.method
}

func (h *routeHandler) collect(pick func(enhancerSet) []any) []hosted {
	global, class, method := h.levels()
	var out []hosted
	for _, spec := range pick(global) {
		out = append(out, hosted{spec: spec, host: h.exec.root})
	}
	for _, spec := range pick(class) {
		out = append(out, hosted{spec: spec, host: h.wrapper.host})
	}
	for _, spec := range pick(method) {
		out = append(out, hosted{spec: spec, host: h.wrapper.host})
	}
	return out
}

// pipes lists the method, controller and global pipes, each level in
// declaration order.
func (h *routeHandler) pipes() []hosted {
	global, class, method := h.levels()
	var out []hosted
	for _, spec := range method.pipes {
		out = append(out, hosted{spec: spec, host: h.wrapper.host})
	}
	for _, spec := range class.pipes {
		out = append(out, hosted{spec: spec, host: h.wrapper.host})
	}
	for _, spec := range global.pipes {
		out = append(out, hosted{spec: spec, host: h.exec.root})
	}
	return out
}

// filters lists the exception filters from the most specific level.
func (h *routeHandler) filters() []hosted {
	global, class, method := h.levels()
	var out []hosted
	for _, spec := range method.filters {
		out = append(out, hosted{spec: spec, host: h.wrapper.host})
	}
	for _, spec := range class.filters {
		out = append(out, hosted{spec: spec, host: h.wrapper.host})
	}
	for _, spec := range global.filters {
		out = append(out, hosted{spec: spec, host: h.exec.root})
	}
	return out
}

func (h *routeHandler) run(ec *ExecutionContext) error {
	inj := h.exec.injector
	ctx := ec.Context()
	id := ec.http.ID()

	instance, err := inj.loadInstance(ctx, h.wrapper, id, nil)
	if err != nil {
		return err
	}
	ec.controller = instance

	for _, g := range h.collect(func(s enhancerSet) []any { return s.guards }) {
		guard, err := resolveEnhancer[Guard](ec.Context(), inj, g.host, g.spec, id, guardFuncType)
		if err != nil {
			return err
		}
		allowed, err := safeCall(func() (any, error) { return guard.CanActivate(ec) })
		if err != nil {
			return err
		}
		if ok, _ := allowed.(bool); !ok {
			return NewForbiddenException(forbiddenMessage)
		}
	}

	var handler CallHandler = CallHandlerFunc(func() (any, error) {
		return h.invoke(ec)
	})

	declared := h.collect(func(s enhancerSet) []any { return s.interceptors })
	interceptors := make([]Interceptor, len(declared))
	for i, d := range declared {
		ic, err := resolveEnhancer[Interceptor](ec.Context(), inj, d.host, d.spec, id, interceptorFuncType)
		if err != nil {
			return err
		}
		interceptors[i] = ic
	}
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic, next := interceptors[i], handler
		handler = CallHandlerFunc(func() (any, error) {
			return safeCall(func() (any, error) { return ic.Intercept(ec, next) })
		})
	}

	result, err := handler.Handle()
	if err != nil {
		return err
	}
	return h.exec.respond(ec.http, h.route, result)
}

func (h *routeHandler) invoke(ec *ExecutionContext) (any, error) {
	args, err := h.arguments(ec)
	if err != nil {
		return nil, err
	}

	bound, ok := reflection.Method(ec.controller, h.route.Handler)
	if !ok {
		return nil, fmt.Errorf("handler method %q not found on %T", h.route.Handler, ec.controller)
	}

	out, p := reflection.Call(bound, args)
	if p != nil {
		return nil, &PanicError{Value: p.Value, Stack: p.Stack}
	}
	return h.sig.Results(out)
}

// arguments resolves the handler arguments, running pipes over declared
// ones.
func (h *routeHandler) arguments(ec *ExecutionContext) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(h.sig.Params))
	values := make([]any, len(h.sig.Params))

	if !h.route.hasArgs {
		for i, p := range h.sig.Params {
			v := byType(ec, p.Type)
			args[i] = reflect.ValueOf(v)
			values[i] = v
		}
		ec.args = values
		return args, nil
	}

	pipes := h.pipes()
	for i, spec := range h.route.args {
		t := h.sig.Params[i].Type
		raw, err := extract(ec, spec, t)
		if err != nil {
			return nil, err
		}

		if pipesApply(spec.Kind) {
			meta := ArgumentMetadata{Type: spec.Kind, Data: spec.Key, Metatype: t, Index: i}
			chain := make([]hosted, 0, len(spec.pipes)+len(pipes))
			for _, p := range spec.pipes {
				chain = append(chain, hosted{spec: p, host: h.wrapper.host})
			}
			chain = append(chain, pipes...)
			raw, err = h.transform(ec, chain, raw, meta)
			if err != nil {
				return nil, err
			}
		}

		arg, err := convertArg(raw, t)
		if err != nil {
			return nil, err
		}
		args[i] = arg
		values[i] = arg.Interface()
	}
	ec.args = values
	return args, nil
}

func (h *routeHandler) transform(ec *ExecutionContext, chain []hosted, value any, meta ArgumentMetadata) (any, error) {
	for _, p := range chain {
		pipe, err := resolveEnhancer[Pipe](ec.Context(), h.exec.injector, p.host, p.spec, ec.http.ID(), pipeFuncType)
		if err != nil {
			return nil, err
		}
		value, err = safeCall(func() (any, error) { return pipe.Transform(value, meta) })
		if err != nil {
			var httpErr *HTTPException
			var panicErr *PanicError
			if errors.As(err, &httpErr) || errors.As(err, &panicErr) {
				return nil, err
			}
			return nil, NewBadRequestException(err.Error()).WithCause(err)
		}
	}
	return value, nil
}

func pipesApply(kind ParamKind) bool {
	switch kind {
	case ParamRequest, ParamResponse, ParamContext:
		return false
	}
	return true
}

func byType(ec *ExecutionContext, t reflect.Type) any {
	switch t {
	case contextPtrType:
		return ec.http
	case execContextType:
		return ec
	case requestPtrType:
		return ec.http.Request()
	case responseType:
		return ec.http.ResponseWriter()
	default:
		return ec.Context()
	}
}

// extract reads the raw value of one declared argument from the request.
func extract(ec *ExecutionContext, spec ParamSpec, t reflect.Type) (any, error) {
	c := ec.http
	switch spec.Kind {
	case ParamBody:
		if spec.Key == "" {
			target := reflect.New(t)
			if err := c.Bind(target.Interface()); err != nil {
				return nil, err
			}
			return target.Elem().Interface(), nil
		}
		var fields map[string]any
		if err := c.Bind(&fields); err != nil {
			return nil, err
		}
		return fields[spec.Key], nil

	case ParamQuery:
		if spec.Key != "" {
			return c.Query(spec.Key), nil
		}
		if t == urlValuesType {
			return c.Queries(), nil
		}
		flat := make(map[string]string)
		for k, v := range c.Queries() {
			if len(v) > 0 {
				flat[k] = v[0]
			}
		}
		return flat, nil

	case ParamPath:
		if spec.Key != "" {
			return c.Param(spec.Key), nil
		}
		return c.Params(), nil

	case ParamHeader:
		if spec.Key != "" {
			return c.Header(spec.Key), nil
		}
		return c.Request().Header.Clone(), nil

	case ParamRequest:
		return c.Request(), nil

	case ParamResponse:
		return c.ResponseWriter(), nil

	case ParamContext:
		return c, nil

	case ParamCustom:
		if spec.factory == nil {
			return nil, errors.New("custom parameter without factory")
		}
		return safeCall(func() (any, error) { return spec.factory(spec.data, ec) })
	}
	return nil, fmt.Errorf("unknown parameter kind %d", spec.Kind)
}

// convertArg converts a piped value to the handler parameter type t.
func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if arg, ok := reflection.Arg(v, t); ok {
		return arg, nil
	}

	if s, ok := v.(string); ok {
		if arg, ok, err := parseScalar(s, t); ok {
			return arg, err
		}
	}

	if v != nil {
		rv := reflect.ValueOf(v)
		if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
			return rv.Convert(t), nil
		}
		if s, ok := v.(fmt.Stringer); ok && t.Kind() == reflect.String {
			return reflect.ValueOf(s.String()).Convert(t), nil
		}
	}

	switch t.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Pointer:
		if v == nil {
			return reflect.Zero(t), nil
		}
		data, err := json.Marshal(normalizeStrings(v))
		if err != nil {
			return reflect.Value{}, NewBadRequestException(err.Error()).WithCause(err)
		}
		target := reflect.New(t)
		if err := json.Unmarshal(data, target.Interface()); err != nil {
			return reflect.Value{}, NewBadRequestException("Validation failed: " + err.Error()).WithCause(err)
		}
		return target.Elem(), nil
	}

	return reflect.Value{}, &TypeMismatchError{Expected: t, Actual: reflect.TypeOf(v), Context: "handler argument"}
}

// normalizeStrings unwraps single-value url.Values entries so they can be
// decoded into struct fields.
func normalizeStrings(v any) any {
	if values, ok := v.(url.Values); ok {
		flat := make(map[string]any, len(values))
		for k, vs := range values {
			if len(vs) == 1 {
				flat[k] = vs[0]
			} else {
				flat[k] = vs
			}
		}
		return flat
	}
	return v
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// parseScalar parses s into a scalar of type t. ok is false for
// non-scalar types.
func parseScalar(s string, t reflect.Type) (reflect.Value, bool, error) {
	out := reflect.New(t).Elem()
	invalid := func(err error) (reflect.Value, bool, error) {
		return reflect.Value{}, true, NewBadRequestException(fmt.Sprintf("Validation failed (%s is expected)", t.Kind())).WithCause(err)
	}

	switch t.Kind() {
	case reflect.String:
		out.SetString(s)
		return out, true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if s == "" {
			return out, true, nil
		}
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return invalid(err)
		}
		out.SetInt(n)
		return out, true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if s == "" {
			return out, true, nil
		}
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return invalid(err)
		}
		out.SetUint(n)
		return out, true, nil
	case reflect.Float32, reflect.Float64:
		if s == "" {
			return out, true, nil
		}
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return invalid(err)
		}
		out.SetFloat(f)
		return out, true, nil
	case reflect.Bool:
		if s == "" {
			return out, true, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return invalid(err)
		}
		out.SetBool(b)
		return out, true, nil
	}
	return reflect.Value{}, false, nil
}

// respond writes a handler result.
func (e *routerExecution) respond(c *Context, route *RouteDefinition, result any) error {
	if c.Written() {
		return nil
	}
	for _, h := range route.headers {
		c.w.Header().Set(h.name, h.value)
	}

	if route.redirect != nil {
		return redirectFor(*route.redirect, result).Write(c.w)
	}

	if resp, ok := result.(Response); ok {
		return resp.Write(c.w)
	}

	status := c.status
	if status == 0 {
		status = route.httpCode
	}
	if status == 0 {
		status = http.StatusOK
		if route.Method == http.MethodPost {
			status = http.StatusCreated
		}
	}

	return writeResult(c.w, status, result)
}

func writeResult(w http.ResponseWriter, status int, result any) error {
	switch v := result.(type) {
	case nil:
		w.WriteHeader(status)
		return nil
	case string:
		return Text(status, v).Write(w)
	case []byte:
		return Blob(status, "application/octet-stream", v).Write(w)
	default:
		return JSON(status, v).Write(w)
	}
}

// redirectFor applies a handler result to a declared redirect.
func redirectFor(declared RedirectResult, result any) RedirectResult {
	switch v := result.(type) {
	case RedirectResult:
		if v.URL != "" {
			declared.URL = v.URL
		}
		if v.StatusCode != 0 {
			declared.StatusCode = v.StatusCode
		}
	case *RedirectResult:
		if v != nil {
			return redirectFor(declared, *v)
		}
	case map[string]any:
		if u, ok := v["url"].(string); ok && u != "" {
			declared.URL = u
		}
		switch code := v["statusCode"].(type) {
		case int:
			declared.StatusCode = code
		case float64:
			declared.StatusCode = int(code)
		}
	}
	return declared
}

// handleException runs the exception filters for err, then the default
// handler when no filter catches it.
func (e *routerExecution) handleException(ec *ExecutionContext, filters []hosted, err error) {
	exception := exceptionValue(err)
	c := ec.http

	for _, f := range filters {
		bound, rerr := resolveFilter(ec.Context(), e.injector, f.host, f.spec, c.ID())
		if rerr != nil {
			e.logger.Error("failed to resolve exception filter", zap.Error(rerr))
			continue
		}
		if !catchesException(bound.types, exception) {
			continue
		}

		result, ferr := safeCall(func() (any, error) { return bound.filter.Catch(exception, ec), nil })
		if ferr != nil {
			e.logger.Error("exception filter failed", zap.Error(ferr))
			break
		}
		if werr := e.writeFilterResult(c, exception, result); werr != nil {
			e.logger.Error("failed to write filter response", zap.Error(werr))
		}
		return
	}

	e.defaultException(c, exception)
}

func (e *routerExecution) writeFilterResult(c *Context, exception any, result any) error {
	if c.Written() {
		return nil
	}
	if resp, ok := result.(Response); ok {
		return resp.Write(c.w)
	}

	status := exceptionStatus(exception)
	if result == nil {
		c.w.WriteHeader(status)
		return nil
	}
	return writeResult(c.w, status, result)
}

func (e *routerExecution) defaultException(c *Context, exception any) {
	status, body := defaultExceptionBody(exception)
	if status >= http.StatusInternalServerError {
		e.logger.Error("unhandled exception",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.String("exception", printable(exception)))
	}
	if c.Written() {
		return
	}
	if err := JSON(status, body).Write(c.w); err != nil {
		e.logger.Error("failed to write exception response", zap.Error(err))
	}
}

// safeCall runs fn, turning a panic into a *PanicError.
func safeCall(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
