package loadbalance

import (
	"fmt"
	"sync/atomic"

	"gbxremote/registry"
)

// RoundRobinBalancer cycles through the instances in order, lock-free.
type RoundRobinBalancer struct {
	counter atomic.Int64
}

func (b *RoundRobinBalancer) Pick(instances []registry.ServerInstance) (*registry.ServerInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no dedicated server available")
	}
	index := (b.counter.Add(1) - 1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
