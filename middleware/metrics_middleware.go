package middleware

import (
	"context"
	"time"

	"dashrpc/metrics"
	"dashrpc/rpcerr"
)

// MetricsMiddleware records outcome and latency of single-reply calls.
func MetricsMiddleware(c *metrics.Collector) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) ([]byte, error) {
			start := time.Now()
			data, err := next(ctx, inv)
			c.ObserveCall(inv.Route, "single", rpcerr.Kind(err), time.Since(start))
			return data, err
		}
	}
}
