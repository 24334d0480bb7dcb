package middleware

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts handled RPCs by procedure and result code.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	streams  prometheus.Gauge
}

// NewMetrics creates the RPC collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docstore",
			Name:      "rpc_requests_total",
			Help:      "Handled RPCs by procedure and code.",
		}, []string{"procedure", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docstore",
			Name:      "rpc_duration_seconds",
			Help:      "Latency of unary RPCs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docstore",
			Name:      "open_watch_streams",
			Help:      "Watch streams currently open.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.streams)
	return m
}

// Interceptor returns the Connect interceptor feeding these collectors.
func (m *Metrics) Interceptor() connect.Interceptor {
	return metricsInterceptor{m}
}

type metricsInterceptor struct {
	m *Metrics
}

func (i metricsInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		procedure := req.Spec().Procedure
		start := time.Now()
		resp, err := next(ctx, req)
		i.m.duration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
		i.m.requests.WithLabelValues(procedure, codeLabel(err)).Inc()
		return resp, err
	}
}

func (i metricsInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i metricsInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		i.m.streams.Inc()
		defer i.m.streams.Dec()
		err := next(ctx, conn)
		i.m.requests.WithLabelValues(conn.Spec().Procedure, codeLabel(err)).Inc()
		return err
	}
}

func codeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return connect.CodeOf(err).String()
}
