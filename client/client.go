// Package client is the dashboard's RPC client: one shared connection,
// single-reply calls with timeouts, multi-reply calls that either accumulate or
// push, and a typed layer on top.
//
//	Client ──► connManager ──► transport.ClientTransport ──► backend
//	   │
//	   ├─ RequestResponse / Call[Resp] / CallRaw    (single reply, timeout)
//	   └─ Collect[T] / Subscribe[T]                 (multi reply)
//
// A Client is created once at start-up, shared by every caller, and closed at
// shutdown.
package client

import (
	"time"

	"dashrpc/metrics"
	"dashrpc/middleware"

	"go.uber.org/zap"
)

const (
	DefaultCallTimeout = 10 * time.Second
	DefaultDialTimeout = 5 * time.Second
)

type Client struct {
	conns   *connManager
	handler middleware.HandlerFunc // middleware chain ending in c.invoke
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Collector
}

type Option func(*options)

type options struct {
	log         *zap.Logger
	timeout     time.Duration
	dialTimeout time.Duration
	middlewares []middleware.Middleware
	metrics     *metrics.Collector
}

func WithLogger(log *zap.Logger) Option { return func(o *options) { o.log = log } }

// WithCallTimeout sets the default window of single-reply calls.
func WithCallTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) Option { return func(o *options) { o.dialTimeout = d } }

// WithMiddleware appends to the chain wrapped around single-reply calls.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithMetrics records connects, stream items and, as the outermost middleware,
// every single-reply call.
func WithMetrics(c *metrics.Collector) Option { return func(o *options) { o.metrics = c } }

// NewClient creates a client. Nothing is dialed until the first call.
func NewClient(dialer Dialer, opts ...Option) *Client {
	o := options{
		log:         zap.NewNop(),
		timeout:     DefaultCallTimeout,
		dialTimeout: DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		conns: &connManager{
			dialer:      dialer,
			dialTimeout: o.dialTimeout,
			log:         o.log.Named("conn"),
			metrics:     o.metrics,
		},
		timeout: o.timeout,
		log:     o.log,
		metrics: o.metrics,
	}
	mws := o.middlewares
	if o.metrics != nil {
		mws = append([]middleware.Middleware{middleware.MetricsMiddleware(o.metrics)}, mws...)
	}
	c.handler = middleware.Chain(mws...)(c.invoke)
	return c
}

// State reports the shared connection's lifecycle state.
func (c *Client) State() State {
	return c.conns.state()
}

// Close drops the connection. Calls in flight fail with a ConnectionError and
// later calls fail immediately.
func (c *Client) Close() error {
	return c.conns.close()
}
