package middleware

import (
	"context"
	"time"

	"dashrpc/rpcerr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoggingMiddleware logs every call with a fresh call id. Declines are routine
// (Info); transport, timeout and parse failures are Warn.
func LoggingMiddleware(log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) ([]byte, error) {
			start := time.Now()
			data, err := next(ctx, inv)
			fields := []zap.Field{
				zap.String("call_id", uuid.NewString()),
				zap.String("route", inv.Route),
				zap.Duration("duration", time.Since(start)),
				zap.String("outcome", rpcerr.Kind(err)),
			}
			switch {
			case err == nil:
				log.Debug("call", append(fields, zap.Int("reply_bytes", len(data)))...)
			case rpcerr.IsDomain(err):
				log.Info("call declined", fields...)
			default:
				log.Warn("call failed", append(fields, zap.Error(err))...)
			}
			return data, err
		}
	}
}
