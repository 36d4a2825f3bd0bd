package interceptors

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/imdat99/bun-di-sub000"
)

// TimeoutInterceptor fails handler calls running longer than its duration
// with a 408 exception. The handler's context is cancelled at the deadline;
// the handler keeps running until it returns.
type TimeoutInterceptor struct {
	timeout time.Duration
}

// NewTimeoutInterceptor creates a timeout interceptor.
func NewTimeoutInterceptor(timeout time.Duration) *TimeoutInterceptor {
	return &TimeoutInterceptor{timeout: timeout}
}

type callResult struct {
	value any
	err   error
}

// Intercept implements bundi.Interceptor.
func (t *TimeoutInterceptor) Intercept(ctx *bundi.ExecutionContext, next bundi.CallHandler) (any, error) {
	if t.timeout <= 0 {
		return next.Handle()
	}

	deadline, cancel := context.WithTimeout(ctx.Context(), t.timeout)
	defer cancel()
	ctx.SetContext(deadline)

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: &bundi.PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		v, err := next.Handle()
		done <- callResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && deadline.Err() != nil {
			return nil, t.exception(deadline.Err())
		}
		return res.value, res.err
	case <-deadline.Done():
		return nil, t.exception(deadline.Err())
	}
}

func (t *TimeoutInterceptor) exception(cause error) error {
	return bundi.NewRequestTimeoutException(fmt.Sprintf("Request timed out after %s", t.timeout)).WithCause(cause)
}
