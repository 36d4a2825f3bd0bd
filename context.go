package bundi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
)

type requestContextKey struct{}

// RequestFromContext returns the request *Context carried by ctx, or nil.
func RequestFromContext(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(requestContextKey{}).(*Context)
	return c
}

// Context is the per-request handle passed to middleware, guards, pipes and
// handlers. It wraps the response writer and request of one HTTP exchange.
type Context struct {
	w      *responseWriter
	r      *http.Request
	param  func(r *http.Request, name string) string
	names  []string
	id     ContextID
	status int

	mu     sync.RWMutex
	values map[string]any

	bodyOnce sync.Once
	body     []byte
	bodyErr  error
}

func newContext(w http.ResponseWriter, r *http.Request, param func(*http.Request, string) string) *Context {
	rw, ok := w.(*responseWriter)
	if !ok {
		rw = &responseWriter{ResponseWriter: w}
	}

	c := &Context{
		w:     rw,
		param: param,
		id:    NewContextID(),
	}
	c.r = r.WithContext(context.WithValue(r.Context(), requestContextKey{}, c))
	return c
}

// ID returns the request's context id.
func (c *Context) ID() ContextID {
	return c.id
}

// Request returns the underlying request.
func (c *Context) Request() *http.Request {
	return c.r
}

// ResponseWriter returns the underlying response writer.
func (c *Context) ResponseWriter() http.ResponseWriter {
	return c.w
}

// Context returns the request's context.Context.
func (c *Context) Context() context.Context {
	return c.r.Context()
}

// SetContext replaces the request's context.Context. The request *Context
// stays reachable from the new context.
func (c *Context) SetContext(ctx context.Context) {
	if RequestFromContext(ctx) != c {
		ctx = context.WithValue(ctx, requestContextKey{}, c)
	}
	c.r = c.r.WithContext(ctx)
}

// setRequest adopts r, typically the router's copy of the original request.
func (c *Context) setRequest(r *http.Request) {
	if RequestFromContext(r.Context()) != c {
		r = r.WithContext(context.WithValue(r.Context(), requestContextKey{}, c))
	}
	c.r = r
}

// Method returns the request method.
func (c *Context) Method() string {
	return c.r.Method
}

// Path returns the request path.
func (c *Context) Path() string {
	return c.r.URL.Path
}

// Param returns the path parameter name.
func (c *Context) Param(name string) string {
	if c.param == nil {
		return c.r.PathValue(name)
	}
	return c.param(c.r, name)
}

// Params returns every path parameter of the matched route.
func (c *Context) Params() map[string]string {
	params := make(map[string]string, len(c.names))
	for _, name := range c.names {
		params[name] = c.Param(name)
	}
	return params
}

// Query returns the first value of the query parameter name.
func (c *Context) Query(name string) string {
	return c.r.URL.Query().Get(name)
}

// Queries returns the parsed query string.
func (c *Context) Queries() url.Values {
	return c.r.URL.Query()
}

// Header returns the request header name.
func (c *Context) Header(name string) string {
	return c.r.Header.Get(name)
}

// Body returns the request body. The body is read once and kept.
func (c *Context) Body() ([]byte, error) {
	c.bodyOnce.Do(func() {
		if c.r.Body == nil {
			return
		}
		c.body, c.bodyErr = io.ReadAll(c.r.Body)
		_ = c.r.Body.Close()
		c.r.Body = io.NopCloser(bytes.NewReader(c.body))
	})
	return c.body, c.bodyErr
}

// Bind decodes the JSON request body into v. An empty body leaves v
// untouched.
func (c *Context) Bind(v any) error {
	body, err := c.Body()
	if err != nil {
		return NewBadRequestException("Failed to read request body").WithCause(err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return NewBadRequestException("Invalid JSON body").WithCause(err)
	}
	return nil
}

// Set stores a request-local value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns a request-local value.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Status sets the status code used for the handler's result, overriding the
// route default.
func (c *Context) Status(code int) *Context {
	c.status = code
	return c
}

// SetHeader sets a response header.
func (c *Context) SetHeader(name, value string) *Context {
	c.w.Header().Set(name, value)
	return c
}

// Written reports whether the response has been started.
func (c *Context) Written() bool {
	return c.w.written
}

// StatusCode returns the status written, or 0 when nothing was written.
func (c *Context) StatusCode() int {
	return c.w.status
}

// Write writes resp immediately.
func (c *Context) Write(resp Response) error {
	return resp.Write(c.w)
}

// JSON writes v as a JSON response immediately.
func (c *Context) JSON(status int, v any) error {
	return c.Write(JSON(status, v))
}

// Text writes a plain text response immediately.
func (c *Context) Text(status int, s string) error {
	return c.Write(Text(status, s))
}

// Redirect writes a redirect response immediately.
func (c *Context) Redirect(url string, status int) error {
	return c.Write(RedirectResult{URL: url, StatusCode: status})
}

// responseWriter records whether and with which status a response was
// written.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.written {
		return
	}
	w.status = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.written {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// ========================================
// Responses
// ========================================

// Response is a complete response. Handlers returning a Response have it
// written unchanged.
type Response interface {
	Write(w http.ResponseWriter) error
}

// ResponseFunc adapts a function to Response.
type ResponseFunc func(w http.ResponseWriter) error

// Write calls f(w).
func (f ResponseFunc) Write(w http.ResponseWriter) error {
	return f(w)
}

type jsonResponse struct {
	status int
	body   any
}

// JSON returns a JSON response.
func JSON(status int, body any) Response {
	return jsonResponse{status: status, body: body}
}

func (r jsonResponse) Write(w http.ResponseWriter) error {
	data, err := json.Marshal(r.body)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(r.status)
	_, err = w.Write(data)
	return err
}

// Text returns a plain text response.
func Text(status int, s string) Response {
	return Blob(status, "text/plain; charset=utf-8", []byte(s))
}

// Blob returns a raw response with the given content type.
func Blob(status int, contentType string, data []byte) Response {
	return ResponseFunc(func(w http.ResponseWriter) error {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, err := w.Write(data)
		return err
	})
}

// NoContent returns an empty 204 response.
func NoContent() Response {
	return ResponseFunc(func(w http.ResponseWriter) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// Write writes the redirect.
func (r RedirectResult) Write(w http.ResponseWriter) error {
	if r.URL == "" {
		return errors.New("redirect: empty url")
	}
	status := r.StatusCode
	if status == 0 {
		status = http.StatusFound
	}
	w.Header().Set("Location", r.URL)
	w.WriteHeader(status)
	return nil
}
