package client

import (
	"context"
	"fmt"

	"dashrpc/loadbalance"
	"dashrpc/registry"
	"dashrpc/transport"

	"go.uber.org/zap"
)

// Dialer opens a new transport. The connection manager calls it at most once
// per connection attempt.
type Dialer interface {
	Dial(ctx context.Context) (*transport.ClientTransport, error)
}

type DialerFunc func(ctx context.Context) (*transport.ClientTransport, error)

func (f DialerFunc) Dial(ctx context.Context) (*transport.ClientTransport, error) {
	return f(ctx)
}

// URLDialer always dials the same endpoint.
func URLDialer(url string, opts transport.Options) Dialer {
	return DialerFunc(func(ctx context.Context) (*transport.ClientTransport, error) {
		return transport.Dial(ctx, url, opts)
	})
}

// EndpointDialer resolves the backend on every attempt: discover instances in
// the registry, let the balancer pick one, dial it.
type EndpointDialer struct {
	Registry  registry.Registry
	Balancer  loadbalance.Balancer
	Service   string
	Transport transport.Options
	Logger    *zap.Logger
}

func (d *EndpointDialer) Dial(ctx context.Context) (*transport.ClientTransport, error) {
	instances, err := d.Registry.Discover(ctx, d.Service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", d.Service, err)
	}
	instance, err := d.Balancer.Pick(instances)
	if err != nil {
		return nil, fmt.Errorf("pick %s instance: %w", d.Service, err)
	}
	if d.Logger != nil {
		d.Logger.Debug("dialing backend",
			zap.String("service", d.Service),
			zap.String("addr", instance.Addr),
			zap.String("balancer", d.Balancer.Name()),
			zap.Int("candidates", len(instances)))
	}
	return transport.Dial(ctx, instance.Addr, d.Transport)
}
