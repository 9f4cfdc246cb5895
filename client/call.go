package client

import (
	"context"
	"fmt"
	"time"

	"dashrpc/codec"
	"dashrpc/message"
	"dashrpc/middleware"
	"dashrpc/route"
	"dashrpc/rpcerr"
)

var (
	jsonCodec = codec.GetCodec(codec.CodecTypeJSON)
	rawCodec  = codec.GetCodec(codec.CodecTypeRaw)
)

// CallOption adjusts one call.
type CallOption func(*middleware.Invocation)

// Timeout overrides the client's call timeout for one single-reply call.
func Timeout(d time.Duration) CallOption {
	return func(inv *middleware.Invocation) {
		if d > 0 {
			inv.Timeout = d
		}
	}
}

// RequestResponse sends data on routeName and waits for exactly one outcome:
// the reply bytes, or an error classified by rpcerr. Whichever of reply,
// completion, failure or timeout comes first decides the result; anything the
// server sends afterwards is dropped.
func (c *Client) RequestResponse(ctx context.Context, routeName string, data []byte, opts ...CallOption) ([]byte, error) {
	inv := &middleware.Invocation{Route: routeName, Data: data, Timeout: c.timeout}
	for _, opt := range opts {
		opt(inv)
	}
	return c.handler(ctx, inv)
}

// invoke is the innermost handler of the middleware chain.
func (c *Client) invoke(ctx context.Context, inv *middleware.Invocation) ([]byte, error) {
	metadata, err := route.Encode(inv.Route)
	if err != nil {
		return nil, rpcerr.RouteError.Wrap(err)
	}
	t, err := c.conns.connect(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := t.RequestResponse(message.Payload{Metadata: metadata, Data: inv.Data})
	if err != nil {
		return nil, err
	}
	defer stream.Release()

	timer := time.NewTimer(inv.Timeout)
	defer timer.Stop()

	select {
	case ev := <-stream.Events():
		switch ev.Kind {
		case message.EventNext:
			return ev.Data, nil
		case message.EventComplete:
			return nil, rpcerr.DomainError.Wrap(fmt.Errorf("%s: %w", inv.Route, rpcerr.ErrNoValue))
		default:
			return nil, ev.Err
		}
	case <-timer.C:
		return nil, rpcerr.TimeoutError.New("%s: no reply within %s", inv.Route, inv.Timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", inv.Route, ctx.Err())
	}
}

// Call sends req as JSON and decodes the reply into Resp. A reply that is not
// valid JSON for Resp, or that fails Resp's validation tags, is a ParseError.
func Call[Resp any](ctx context.Context, c *Client, routeName string, req any, opts ...CallOption) (Resp, error) {
	return CallWith[Resp](ctx, c, routeName, req, jsonCodec, opts...)
}

// CallRaw sends req as JSON and returns the reply bytes unparsed.
func CallRaw(ctx context.Context, c *Client, routeName string, req any, opts ...CallOption) ([]byte, error) {
	return CallWith[[]byte](ctx, c, routeName, req, rawCodec, opts...)
}

// CallWith sends req as JSON and decodes the reply with reply.
func CallWith[Resp any](ctx context.Context, c *Client, routeName string, req any, reply codec.Codec, opts ...CallOption) (Resp, error) {
	var resp Resp
	body, err := jsonCodec.Encode(req)
	if err != nil {
		return resp, fmt.Errorf("encode %s request: %w", routeName, err)
	}
	data, err := c.RequestResponse(ctx, routeName, body, opts...)
	if err != nil {
		return resp, err
	}
	if err := reply.Decode(data, &resp); err != nil {
		return resp, fmt.Errorf("%s: %w", routeName, err)
	}
	return resp, nil
}
