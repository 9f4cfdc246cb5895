package middleware

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"dashrpc/metrics"
	"dashrpc/rpcerr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// 模拟一个简单的 handler：直接返回成功响应
func echoHandler(ctx context.Context, inv *Invocation) ([]byte, error) {
	return []byte("ok"), nil
}

// flaky fails with err for the first n calls.
func flaky(n int32, err error, calls *atomic.Int32) HandlerFunc {
	return func(ctx context.Context, inv *Invocation) ([]byte, error) {
		if calls.Add(1) <= n {
			return nil, err
		}
		return []byte("ok"), nil
	}
}

var inv = &Invocation{Route: "users.login", Timeout: time.Second}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := LoggingMiddleware(zap.New(core))(echoHandler)

	data, err := handler(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	entries := logs.FilterMessage("call").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "users.login", ctx["route"])
	assert.NotEmpty(t, ctx["call_id"])
	assert.Equal(t, "ok", ctx["outcome"])
}

func TestLoggingLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	declined := LoggingMiddleware(log)(func(ctx context.Context, inv *Invocation) ([]byte, error) {
		return nil, rpcerr.DomainError.Wrap(rpcerr.ErrNoValue)
	})
	declined(context.Background(), inv)
	assert.Equal(t, 1, logs.FilterMessage("call declined").Len())

	failed := LoggingMiddleware(log)(func(ctx context.Context, inv *Invocation) ([]byte, error) {
		return nil, rpcerr.TimeoutError.New("no reply")
	})
	failed(context.Background(), inv)
	entries := logs.FilterMessage("call failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2 → 前 2 个立刻放行，第 3 个被拒
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		_, err := handler(context.Background(), inv)
		require.NoError(t, err, "request %d should pass", i)
	}

	_, err := handler(context.Background(), inv)
	assert.True(t, rpcerr.IsThrottled(err), "request 3 should be rate limited, got %v", err)
}

func TestRetryRecoversFromTimeout(t *testing.T) {
	var calls atomic.Int32
	handler := RetryMiddleware(3, time.Millisecond, zap.NewNop())(flaky(2, rpcerr.TimeoutError.New("slow"), &calls))

	data, err := handler(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	handler := RetryMiddleware(2, time.Millisecond, zap.NewNop())(flaky(10, rpcerr.ConnectionError.New("refused"), &calls))

	_, err := handler(context.Background(), inv)
	assert.True(t, rpcerr.IsConnection(err))
	assert.Equal(t, int32(3), calls.Load(), "1 attempt + 2 retries")
}

func TestRetrySkipsDomainErrors(t *testing.T) {
	var calls atomic.Int32
	handler := RetryMiddleware(3, time.Millisecond, zap.NewNop())(flaky(10, rpcerr.DomainError.Wrap(rpcerr.ErrNoValue), &calls))

	_, err := handler(context.Background(), inv)
	assert.True(t, rpcerr.IsDomain(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handler := RetryMiddleware(5, time.Hour, zap.NewNop())(flaky(10, rpcerr.TimeoutError.New("slow"), &calls))

	_, err := handler(ctx, inv)
	assert.True(t, rpcerr.IsTimeout(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMetrics(t *testing.T) {
	c, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	handler := MetricsMiddleware(c)(echoHandler)
	_, err = handler(context.Background(), inv)
	require.NoError(t, err)
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, inv *Invocation) ([]byte, error) {
				order = append(order, name+".before")
				data, err := next(ctx, inv)
				order = append(order, name+".after")
				return data, err
			}
		}
	}

	handler := Chain(mark("A"), mark("B"), LoggingMiddleware(zap.NewNop()))(echoHandler)
	data, err := handler(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}
