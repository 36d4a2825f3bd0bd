package bundi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// HTTPException is an error carrying an HTTP status and response body.
// Returning or panicking with one from any pipeline stage produces that
// status and body, unless an exception filter handles it first.
type HTTPException struct {
	status   int
	response any
	cause    error
}

// NewHTTPException creates an exception. A string response becomes
// {"statusCode": status, "message": response}; any other value is the body
// as declared.
func NewHTTPException(status int, response any) *HTTPException {
	return &HTTPException{status: status, response: response}
}

// WithCause records the error that led to the exception.
func (e *HTTPException) WithCause(err error) *HTTPException {
	e.cause = err
	return e
}

// Status returns the HTTP status code.
func (e *HTTPException) Status() int {
	return e.status
}

// Response returns the response as given to the constructor.
func (e *HTTPException) Response() any {
	return e.response
}

// Body returns the response body written for the exception.
func (e *HTTPException) Body() any {
	switch r := e.response.(type) {
	case nil:
		return map[string]any{"statusCode": e.status, "message": http.StatusText(e.status)}
	case string:
		return map[string]any{"statusCode": e.status, "message": r}
	default:
		return r
	}
}

func (e *HTTPException) Error() string {
	switch r := e.response.(type) {
	case nil:
		return http.StatusText(e.status)
	case string:
		return r
	case map[string]any:
		if msg, ok := r["message"]; ok {
			return fmt.Sprint(msg)
		}
	}
	return http.StatusText(e.status)
}

func (e *HTTPException) Unwrap() error {
	return e.cause
}

func newException(status int, args []any) *HTTPException {
	if len(args) == 0 {
		return NewHTTPException(status, http.StatusText(status))
	}
	return NewHTTPException(status, args[0])
}

// NewBadRequestException creates a 400 exception. The optional argument is
// the message or the response body.
func NewBadRequestException(response ...any) *HTTPException {
	return newException(http.StatusBadRequest, response)
}

// NewUnauthorizedException creates a 401 exception.
func NewUnauthorizedException(response ...any) *HTTPException {
	return newException(http.StatusUnauthorized, response)
}

// NewForbiddenException creates a 403 exception.
func NewForbiddenException(response ...any) *HTTPException {
	return newException(http.StatusForbidden, response)
}

// NewNotFoundException creates a 404 exception.
func NewNotFoundException(response ...any) *HTTPException {
	return newException(http.StatusNotFound, response)
}

// NewMethodNotAllowedException creates a 405 exception.
func NewMethodNotAllowedException(response ...any) *HTTPException {
	return newException(http.StatusMethodNotAllowed, response)
}

// NewNotAcceptableException creates a 406 exception.
func NewNotAcceptableException(response ...any) *HTTPException {
	return newException(http.StatusNotAcceptable, response)
}

// NewRequestTimeoutException creates a 408 exception.
func NewRequestTimeoutException(response ...any) *HTTPException {
	return newException(http.StatusRequestTimeout, response)
}

// NewConflictException creates a 409 exception.
func NewConflictException(response ...any) *HTTPException {
	return newException(http.StatusConflict, response)
}

// NewGoneException creates a 410 exception.
func NewGoneException(response ...any) *HTTPException {
	return newException(http.StatusGone, response)
}

// NewPayloadTooLargeException creates a 413 exception.
func NewPayloadTooLargeException(response ...any) *HTTPException {
	return newException(http.StatusRequestEntityTooLarge, response)
}

// NewUnsupportedMediaTypeException creates a 415 exception.
func NewUnsupportedMediaTypeException(response ...any) *HTTPException {
	return newException(http.StatusUnsupportedMediaType, response)
}

// NewImATeapotException creates a 418 exception.
func NewImATeapotException(response ...any) *HTTPException {
	return newException(http.StatusTeapot, response)
}

// NewUnprocessableEntityException creates a 422 exception.
func NewUnprocessableEntityException(response ...any) *HTTPException {
	return newException(http.StatusUnprocessableEntity, response)
}

// NewTooManyRequestsException creates a 429 exception.
func NewTooManyRequestsException(response ...any) *HTTPException {
	return newException(http.StatusTooManyRequests, response)
}

// NewInternalServerErrorException creates a 500 exception.
func NewInternalServerErrorException(response ...any) *HTTPException {
	return newException(http.StatusInternalServerError, response)
}

// NewNotImplementedException creates a 501 exception.
func NewNotImplementedException(response ...any) *HTTPException {
	return newException(http.StatusNotImplemented, response)
}

// NewBadGatewayException creates a 502 exception.
func NewBadGatewayException(response ...any) *HTTPException {
	return newException(http.StatusBadGateway, response)
}

// NewServiceUnavailableException creates a 503 exception.
func NewServiceUnavailableException(response ...any) *HTTPException {
	return newException(http.StatusServiceUnavailable, response)
}

// NewGatewayTimeoutException creates a 504 exception.
func NewGatewayTimeoutException(response ...any) *HTTPException {
	return newException(http.StatusGatewayTimeout, response)
}

// ========================================
// Thrown values
// ========================================

// PanicError carries a value recovered from a panic in a handler, guard,
// pipe or interceptor. Exception filters receive the recovered value itself.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return "panic: " + printable(e.Value)
}

// exceptionValue returns the value exception filters see for err.
func exceptionValue(err error) any {
	var p *PanicError
	if errors.As(err, &p) {
		return normalizePanic(p.Value)
	}
	return err
}

// normalizePanic maps a recovered value to the thrown value it represents.
func normalizePanic(v any) any {
	var nilErr *runtime.PanicNilError
	if err, ok := v.(error); ok && errors.As(err, &nilErr) {
		return nil
	}
	return v
}

// exceptionStatus returns the status code an exception maps to.
func exceptionStatus(exception any) int {
	if err, ok := exception.(error); ok {
		var httpErr *HTTPException
		if errors.As(err, &httpErr) {
			return httpErr.status
		}
	}
	return http.StatusInternalServerError
}

// defaultExceptionBody builds the response for an exception no filter
// handled.
func defaultExceptionBody(exception any) (int, any) {
	if err, ok := exception.(error); ok {
		var httpErr *HTTPException
		if errors.As(err, &httpErr) {
			return httpErr.status, httpErr.Body()
		}
		return http.StatusInternalServerError, map[string]any{
			"statusCode": http.StatusInternalServerError,
			"message":    "Internal server error",
			"cause":      err.Error(),
		}
	}

	return http.StatusInternalServerError, map[string]any{
		"statusCode": http.StatusInternalServerError,
		"message":    "Internal server error",
		"error":      printable(exception),
	}
}

// printable renders any thrown value as a string.
func printable(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		if data, err := json.Marshal(t); err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", v)
}
