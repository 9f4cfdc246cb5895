package middleware

import (
	"context"
	"time"

	"dashrpc/rpcerr"

	"go.uber.org/zap"
)

// RetryMiddleware repeats calls that failed with a timeout or a connection
// error, waiting baseDelay, 2*baseDelay, 4*baseDelay... between attempts.
// Declines and parse failures are answers, not accidents, and are returned as is.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) ([]byte, error) {
			data, err := next(ctx, inv)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !rpcerr.Retryable(err) {
					return data, err
				}
				log.Info("retrying call", zap.Int("attempt", i+1), zap.String("route", inv.Route), zap.Error(err))
				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, err
				case <-timer.C:
				}
				data, err = next(ctx, inv)
			}
			return data, err
		}
	}
}
