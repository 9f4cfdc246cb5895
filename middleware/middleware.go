// Package middleware wraps single-reply calls in an onion of cross-cutting
// behavior (logging, rate limiting, retries, metrics).
//
//	Chain(A, B, C)(invoke) → A(B(C(invoke)))
//	Execution order: A.before → B.before → C.before → invoke → C.after → B.after → A.after
package middleware

import (
	"context"
	"time"
)

// Invocation is one single-reply call on its way to the connection.
type Invocation struct {
	Route   string
	Data    []byte
	Timeout time.Duration
}

type HandlerFunc func(ctx context.Context, inv *Invocation) ([]byte, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
