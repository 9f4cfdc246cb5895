package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"dashrpc/registry"
)

// ConsistentHashBalancer maps a fixed key (the client id) onto a hash ring of
// instances, so the same dashboard client reconnects to the same backend as
// long as that backend is registered. When instances come or go only the
// clients whose arc moved are re-pinned.
//
// Each real instance is placed on the ring as `replicas` virtual nodes;
// without them a few instances can cluster and take most of the ring.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	                ╲   ╱
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu      sync.Mutex
	members string                               // fingerprint of the instance set the ring was built from
	ring    []uint32                             // sorted hash values
	nodes   map[uint32]*registry.ServiceInstance // hash value → instance
}

// NewConsistentHashBalancer creates a ring with 100 virtual nodes per instance
// that always resolves key.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		key:      key,
		replicas: 100,
		nodes:    make(map[uint32]*registry.ServiceInstance),
	}
}

// Add places an instance onto the ring with N virtual nodes hashed from "{addr}#{i}".
func (b *ConsistentHashBalancer) Add(instance *registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(instance)
}

func (b *ConsistentHashBalancer) add(instance *registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick rebuilds the ring when the instance set changed, then locates the
// balancer's key on it.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if fp := fingerprint(instances); fp != b.members {
		b.ring = b.ring[:0]
		b.nodes = make(map[uint32]*registry.ServiceInstance, len(instances)*b.replicas)
		for i := range instances {
			inst := instances[i]
			b.add(&inst)
		}
		b.members = fp
	}
	return b.locate(b.key)
}

// Locate finds the instance responsible for an arbitrary key on the current ring.
func (b *ConsistentHashBalancer) Locate(key string) (*registry.ServiceInstance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locate(key)
}

// locate binary-searches for the first node >= hash(key), wrapping to the
// first node past the end of the ring.
func (b *ConsistentHashBalancer) locate(key string) (*registry.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func fingerprint(instances []registry.ServiceInstance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	return fmt.Sprint(addrs)
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
