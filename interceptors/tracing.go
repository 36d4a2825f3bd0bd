package interceptors

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/imdat99/bun-di-sub000"
)

const tracerName = "github.com/imdat99/bun-di-sub000/interceptors"

// TracingInterceptor runs each handler call in a span. The span context is
// visible to the handler through the request context.
type TracingInterceptor struct {
	tracer trace.Tracer
}

// NewTracingInterceptor creates a tracing interceptor using tp.
func NewTracingInterceptor(tp trace.TracerProvider) *TracingInterceptor {
	return &TracingInterceptor{tracer: tp.Tracer(tracerName)}
}

// Intercept implements bundi.Interceptor.
func (t *TracingInterceptor) Intercept(ctx *bundi.ExecutionContext, next bundi.CallHandler) (any, error) {
	r := route(ctx)
	spanCtx, span := t.tracer.Start(ctx.Context(), ctx.HTTP().Method()+" "+r,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", ctx.HTTP().Method()),
			attribute.String("http.route", r),
			attribute.String("url.path", ctx.HTTP().Path()),
			attribute.String("bundi.handler", ctx.HandlerName()),
			attribute.String("bundi.request_id", string(ctx.HTTP().ID())),
		),
	)
	defer span.End()

	ctx.SetContext(spanCtx)
	result, err := next.Handle()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Int("http.response.status_code", status(err)))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}
