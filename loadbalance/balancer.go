// Package loadbalance picks which backend instance a new connection goes to.
//
// The client consults its Balancer once per connection attempt, not per call:
// every call rides the one shared connection.
//   - RoundRobin:      spread reconnects evenly across equal instances
//   - WeightedRandom:  instances of different capacity
//   - ConsistentHash:  keep one dashboard client pinned to the same backend
package loadbalance

import (
	"errors"
	"fmt"

	"dashrpc/registry"
)

var ErrNoInstances = errors.New("no instances available")

// Balancer is the interface for load balancing strategies.
type Balancer interface {
	// Pick selects one instance from the available list. Must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer for a configured strategy name. key is only used by
// "consistent_hash".
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(key), nil
	}
	return nil, fmt.Errorf("unknown balancer %q", name)
}
