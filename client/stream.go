package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dashrpc/message"
	"dashrpc/protocol"
	"dashrpc/route"
	"dashrpc/rpcerr"

	"go.uber.org/zap"
)

// StreamPolicy decides what an accumulated multi-reply call returns when the
// stream fails.
type StreamPolicy int

const (
	// DegradeToEmpty resolves a failed stream to an empty, non-nil list.
	// Items received before the failure are discarded.
	DegradeToEmpty StreamPolicy = iota
	// Propagate returns the stream's error.
	Propagate
)

func (p StreamPolicy) String() string {
	if p == Propagate {
		return "propagate"
	}
	return "degrade"
}

// RequestStream opens a multi-reply call on routeName and feeds every item to
// onItem, in arrival order, until the server completes (nil) or the stream
// fails (its error). If ctx ends first the server is told to cancel.
func (c *Client) RequestStream(ctx context.Context, routeName string, data []byte, onItem func([]byte)) error {
	metadata, err := route.Encode(routeName)
	if err != nil {
		return rpcerr.RouteError.Wrap(err)
	}
	t, err := c.conns.connect(ctx)
	if err != nil {
		return err
	}
	stream, err := t.RequestStream(message.Payload{Metadata: metadata, Data: data}, protocol.MaxRequestN)
	if err != nil {
		return err
	}

	for {
		select {
		case ev := <-stream.Events():
			switch ev.Kind {
			case message.EventNext:
				onItem(ev.Data)
			case message.EventComplete:
				return nil
			default:
				return ev.Err
			}
		case <-ctx.Done():
			stream.Cancel()
			return fmt.Errorf("%s: %w", routeName, ctx.Err())
		}
	}
}

// Collect accumulates a multi-reply call into a list. Items that do not decode
// into T are logged and skipped. On failure the policy decides between an
// empty list and the error; a bad route or a cancelled ctx is always returned.
func Collect[T any](ctx context.Context, c *Client, routeName string, req any, policy StreamPolicy) ([]T, error) {
	body, err := jsonCodec.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", routeName, err)
	}

	start := time.Now()
	items := []T{}
	err = c.RequestStream(ctx, routeName, body, func(data []byte) {
		if item, ok := decodeItem[T](c, routeName, data); ok {
			items = append(items, item)
		}
	})
	c.metrics.ObserveCall(routeName, "stream", rpcerr.Kind(err), time.Since(start))

	switch {
	case err == nil:
		return items, nil
	case policy == Propagate, rpcerr.IsRoute(err), ctx.Err() != nil:
		return nil, err
	}
	c.log.Warn("stream failed, degrading to empty",
		zap.String("route", routeName),
		zap.Int("discarded", len(items)),
		zap.Error(err))
	return []T{}, nil
}

func decodeItem[T any](c *Client, routeName string, data []byte) (T, bool) {
	var item T
	if err := jsonCodec.Decode(data, &item); err != nil {
		c.metrics.StreamItem(routeName, false)
		c.log.Warn("skipping malformed stream item", zap.String("route", routeName), zap.Error(err))
		return item, false
	}
	c.metrics.StreamItem(routeName, true)
	return item, true
}

// Subscription is a live push-mode stream.
type Subscription struct {
	route  string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Close stops delivery and cancels the stream on the server. An item whose
// callback already started still finishes. Safe to call from a callback.
func (s *Subscription) Close() {
	s.cancel()
}

// Done is closed once the stream is over and no more callbacks will run.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err is the stream's failure after Done, or nil if it completed or was closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe opens a multi-reply call and pushes each item to onItem as it
// arrives, from a single goroutine. Items queue up for this subscription while
// onItem runs; other calls on the connection are unaffected. Malformed items are skipped. A stream
// failure is reported once to onError, which may be nil; completion and Close
// end the subscription silently.
func Subscribe[T any](ctx context.Context, c *Client, routeName string, req any, onItem func(T), onError func(error)) (*Subscription, error) {
	if _, err := route.Encode(routeName); err != nil {
		return nil, rpcerr.RouteError.Wrap(err)
	}
	body, err := jsonCodec.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", routeName, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{route: routeName, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer cancel()

		start := time.Now()
		err := c.RequestStream(ctx, routeName, body, func(data []byte) {
			if ctx.Err() != nil {
				return
			}
			if item, ok := decodeItem[T](c, routeName, data); ok {
				onItem(item)
			}
		})
		if ctx.Err() != nil {
			c.metrics.ObserveCall(routeName, "push", "cancelled", time.Since(start))
			return
		}
		c.metrics.ObserveCall(routeName, "push", rpcerr.Kind(err), time.Since(start))
		if err == nil {
			return
		}
		sub.mu.Lock()
		sub.err = err
		sub.mu.Unlock()
		c.log.Warn("subscription failed", zap.String("route", routeName), zap.Error(err))
		if onError != nil {
			onError(err)
		}
	}()
	return sub, nil
}
