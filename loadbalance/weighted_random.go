package loadbalance

import (
	"fmt"
	"math/rand"

	"gbxremote/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to
// its Weight. Instances with no weight count as 1.
type WeightedRandomBalancer struct{}

func weight(inst registry.ServerInstance) int {
	if inst.Weight <= 0 {
		return 1
	}
	return inst.Weight
}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServerInstance) (*registry.ServerInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no dedicated server available")
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += weight(v)
	}

	r := rand.Intn(totalWeight)
	for i := range instances {
		r -= weight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
