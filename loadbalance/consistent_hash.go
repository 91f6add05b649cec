package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"gbxremote/registry"
)

// ConsistentHashBalancer maps keys to instances on a hash ring. The same key
// maps to the same instance until the ring changes.
//
// Each instance is placed as replicas virtual nodes hashed from
// "{addr}#{i}", which keeps the load even with few instances.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	mu       sync.RWMutex
	replicas int
	ring     []uint32                            // Sorted hash values
	nodes    map[uint32]*registry.ServerInstance // Hash value → instance
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*registry.ServerInstance),
	}
}

// Add places an instance onto the ring.
func (b *ConsistentHashBalancer) Add(instance *registry.ServerInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick returns the first node clockwise from the key's hash, wrapping
// around past the largest one.
func (b *ConsistentHashBalancer) Pick(key string) (*registry.ServerInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("no dedicated server available")
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

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

// StickyBalancer adapts the hash ring to the Balancer interface: every Pick
// hashes the same key, typically the controller's instance id, so one
// controller keeps its server while the instance list is stable.
type StickyBalancer struct {
	key string

	mu      sync.Mutex
	ringKey string
	ring    *ConsistentHashBalancer
}

func NewStickyBalancer(key string) *StickyBalancer {
	return &StickyBalancer{key: key}
}

func (b *StickyBalancer) Pick(instances []registry.ServerInstance) (*registry.ServerInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no dedicated server available")
	}

	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	ringKey := strings.Join(addrs, ",")

	b.mu.Lock()
	if b.ring == nil || b.ringKey != ringKey {
		ring := NewConsistentHashBalancer()
		for _, inst := range instances {
			ring.Add(&inst)
		}
		b.ring, b.ringKey = ring, ringKey
	}
	ring := b.ring
	b.mu.Unlock()

	picked, err := ring.Pick(b.key)
	if err != nil {
		return nil, err
	}
	// The ring only decides the address; the instance comes from this call.
	for _, inst := range instances {
		if inst.Addr == picked.Addr {
			return &inst, nil
		}
	}
	return nil, fmt.Errorf("no dedicated server available")
}

func (b *StickyBalancer) Name() string {
	return "ConsistentHash"
}
