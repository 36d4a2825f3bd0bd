package bundi

import (
	"context"
	"net/http"
)

// ExecutionContext describes the handler about to run for the current
// request. Guards, interceptors, filters and custom parameter factories
// receive it.
type ExecutionContext struct {
	http       *Context
	class      *ControllerDef
	route      *RouteDefinition
	controller any
	args       []any
}

func newExecutionContext(c *Context, class *ControllerDef, route *RouteDefinition) *ExecutionContext {
	return &ExecutionContext{http: c, class: class, route: route}
}

// HTTP returns the request context.
func (e *ExecutionContext) HTTP() *Context {
	return e.http
}

// Context returns the request's context.Context.
func (e *ExecutionContext) Context() context.Context {
	return e.http.Context()
}

// SetContext replaces the request's context.Context for the rest of the
// pipeline.
func (e *ExecutionContext) SetContext(ctx context.Context) {
	e.http.SetContext(ctx)
}

// Request returns the underlying request.
func (e *ExecutionContext) Request() *http.Request {
	return e.http.Request()
}

// ResponseWriter returns the underlying response writer.
func (e *ExecutionContext) ResponseWriter() http.ResponseWriter {
	return e.http.ResponseWriter()
}

// Class returns the controller definition serving the request.
func (e *ExecutionContext) Class() *ControllerDef {
	return e.class
}

// HandlerName returns the name of the handler method.
func (e *ExecutionContext) HandlerName() string {
	if e.route == nil {
		return ""
	}
	return e.route.Handler
}

// Handler returns the metadata target of the handler method, for use with
// Reflector.
func (e *ExecutionContext) Handler() MethodTarget {
	return MethodTarget{Class: e.class, Method: e.HandlerName()}
}

// Route returns the route definition.
func (e *ExecutionContext) Route() *RouteDefinition {
	return e.route
}

// Controller returns the controller instance, nil before it is resolved.
func (e *ExecutionContext) Controller() any {
	return e.controller
}

// Args returns the resolved handler arguments. They are available to
// interceptors, once pipes have run.
func (e *ExecutionContext) Args() []any {
	return append([]any(nil), e.args...)
}
