package middleware

import (
	"context"

	"dashrpc/rpcerr"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware 创建一个基于令牌桶算法的限流中间件
// Calls over the limit fail fast with a ThrottledError and never reach the wire.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) ([]byte, error) {
			if !limiter.Allow() {
				return nil, rpcerr.ThrottledError.New("rate limit exceeded for %s", inv.Route)
			}
			return next(ctx, inv)
		}
	}
}
