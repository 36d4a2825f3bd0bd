package interceptors

import (
	"time"

	"go.uber.org/zap"

	"github.com/imdat99/bun-di-sub000"
)

// LoggingInterceptor logs every handler call with its duration.
type LoggingInterceptor struct {
	logger *zap.Logger
}

// NewLoggingInterceptor is the LoggingInterceptor constructor. It receives
// the application logger when passed to UseInterceptors.
func NewLoggingInterceptor(logger *zap.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{logger: logger.Named("http")}
}

// Intercept implements bundi.Interceptor.
func (i *LoggingInterceptor) Intercept(ctx *bundi.ExecutionContext, next bundi.CallHandler) (any, error) {
	start := time.Now()
	result, err := next.Handle()

	fields := []zap.Field{
		zap.String("request_id", string(ctx.HTTP().ID())),
		zap.String("method", ctx.HTTP().Method()),
		zap.String("path", ctx.HTTP().Path()),
		zap.String("handler", ctx.HandlerName()),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		i.logger.Warn("request failed", append(fields, zap.Int("status", status(err)), zap.Error(err))...)
		return nil, err
	}
	i.logger.Info("request handled", fields...)
	return result, nil
}
