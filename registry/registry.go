// Package registry tells the client where the dashboard backend lives.
//
// The default deployment has one fixed local endpoint (StaticRegistry). When the
// backend runs as several instances they register themselves in etcd and the
// client discovers them on every connection attempt (EtcdRegistry).
package registry

import "context"

// ServiceInstance is one reachable backend.
type ServiceInstance struct {
	Addr    string `json:"addr"`   // WebSocket URL, e.g. "ws://127.0.0.1:7000/rpc"
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
