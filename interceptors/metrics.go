package interceptors

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imdat99/bun-di-sub000"
)

// MetricsInterceptor records handler call counts and latencies.
type MetricsInterceptor struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var metricLabels = []string{"method", "route", "handler", "outcome"}

// NewMetricsInterceptor creates the collectors under namespace and registers
// them with reg. Registering the same namespace twice reuses the existing
// collectors.
func NewMetricsInterceptor(reg prometheus.Registerer, namespace string) (*MetricsInterceptor, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Handled HTTP requests.",
	}, metricLabels)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Handler latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, metricLabels)

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &MetricsInterceptor{requests: requests, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Intercept implements bundi.Interceptor.
func (m *MetricsInterceptor) Intercept(ctx *bundi.ExecutionContext, next bundi.CallHandler) (any, error) {
	start := time.Now()
	result, err := next.Handle()

	labels := prometheus.Labels{
		"method":  ctx.HTTP().Method(),
		"route":   route(ctx),
		"handler": ctx.HandlerName(),
		"outcome": outcome(err),
	}
	m.requests.With(labels).Inc()
	m.duration.With(labels).Observe(time.Since(start).Seconds())
	return result, err
}
