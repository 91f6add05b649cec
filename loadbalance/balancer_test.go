package loadbalance

import (
	"fmt"
	"testing"

	"gbxremote/registry"
)

var testInstances = []registry.ServerInstance{
	{Addr: "10.0.0.1:5000", Weight: 10, Version: "3.3.0"},
	{Addr: "10.0.0.2:5000", Weight: 5, Version: "3.3.0"},
	{Addr: "10.0.0.3:5000", Weight: 10, Version: "3.3.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = inst.Addr
	}
	if results[0] != testInstances[0].Addr {
		t.Fatalf("expect the first pick to be %s, got %s", testInstances[0].Addr, results[0])
	}

	// The fourth pick wraps around to the first.
	inst, _ := b.Pick(testInstances)
	if inst.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], inst.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick(nil); err == nil {
		t.Fatal("expect error for empty instances")
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weights are 10:5:10, so .1 should get about twice as many as .2.
	ratio := float64(counts["10.0.0.1:5000"]) / float64(counts["10.0.0.2:5000"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio .1/.2 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	inst, err := b.Pick([]registry.ServerInstance{{Addr: "a"}, {Addr: "b"}})
	if err != nil || inst == nil {
		t.Fatalf("got %v, %v", inst, err)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	if _, err := b.Pick("controller-1"); err == nil {
		t.Fatal("expect error on an empty ring")
	}
	for i := range testInstances {
		b.Add(&testInstances[i])
	}

	inst1, _ := b.Pick("controller-1")
	inst2, _ := b.Pick("controller-1")
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, _ := b.Pick(fmt.Sprintf("controller-%d", i))
		seen[inst.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestStickyBalancer(t *testing.T) {
	b := New("consistent-hash", "3b241101-e2bb-4255-8caf-4136c566a962")

	first, err := b.Pick(testInstances)
	if err != nil {
		t.Fatal(err)
	}
	// Order of discovery must not matter.
	reversed := []registry.ServerInstance{testInstances[2], testInstances[1], testInstances[0]}
	for i := 0; i < 5; i++ {
		inst, _ := b.Pick(reversed)
		if inst.Addr != first.Addr {
			t.Fatalf("sticky pick moved from %s to %s", first.Addr, inst.Addr)
		}
	}
}

func TestNew(t *testing.T) {
	cases := map[string]string{
		"round-robin":     "RoundRobin",
		"weighted-random": "WeightedRandom",
		"consistent-hash": "ConsistentHash",
		"":                "RoundRobin",
	}
	for name, want := range cases {
		if got := New(name, "k").Name(); got != want {
			t.Fatalf("New(%q).Name() = %s, want %s", name, got, want)
		}
	}
}

func TestStickyBalancerReturnsCurrentInstance(t *testing.T) {
	b := NewStickyBalancer("controller-1")
	instances := append([]registry.ServerInstance(nil), testInstances...)
	first, err := b.Pick(instances)
	if err != nil {
		t.Fatal(err)
	}

	// Same addresses, so the ring is reused, but the weights changed and the
	// caller's slice is reused for something else.
	updated := append([]registry.ServerInstance(nil), testInstances...)
	for i := range updated {
		updated[i].Weight = 42
	}
	for i := range instances {
		instances[i] = registry.ServerInstance{Addr: "stale"}
	}

	inst, err := b.Pick(updated)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Addr != first.Addr {
		t.Fatalf("sticky pick moved from %s to %s", first.Addr, inst.Addr)
	}
	if inst.Weight != 42 {
		t.Fatalf("Weight = %d, want the current 42", inst.Weight)
	}
}
