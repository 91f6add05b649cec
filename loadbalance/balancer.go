// Package loadbalance picks one dedicated server out of those registered
// under a name.
//
// Three strategies are implemented:
//   - RoundRobin:      spread controllers evenly over equal servers
//   - WeightedRandom:  servers with different player capacity
//   - ConsistentHash:  a controller keeps landing on the same server
package loadbalance

import "gbxremote/registry"

// Balancer selects a target instance. Pick must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.ServerInstance) (*registry.ServerInstance, error)

	// Name returns the strategy name for logging.
	Name() string
}

// New returns the balancer called name: "round-robin", "weighted-random",
// or "consistent-hash" keyed by key. Unknown names fall back to round robin.
func New(name, key string) Balancer {
	switch name {
	case "weighted-random":
		return &WeightedRandomBalancer{}
	case "consistent-hash":
		return NewStickyBalancer(key)
	default:
		return &RoundRobinBalancer{}
	}
}
