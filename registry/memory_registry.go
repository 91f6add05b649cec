package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry is an in-process Registry for tests and single-host
// setups. TTLs are ignored.
type MemoryRegistry struct {
	mu       sync.Mutex
	entries  map[string]map[string]ServerInstance
	watchers map[string][]chan []ServerInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries:  make(map[string]map[string]ServerInstance),
		watchers: make(map[string][]chan []ServerInstance),
	}
}

func (r *MemoryRegistry) Register(_ context.Context, name string, instance ServerInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[name] == nil {
		r.entries[name] = make(map[string]ServerInstance)
	}
	r.entries[name][instance.Addr] = instance
	r.notifyLocked(name)
	return nil
}

func (r *MemoryRegistry) Deregister(_ context.Context, name string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries[name], addr)
	r.notifyLocked(name)
	return nil
}

// Discover returns the instances sorted by address.
func (r *MemoryRegistry) Discover(_ context.Context, name string) ([]ServerInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(name), nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, name string) <-chan []ServerInstance {
	ch := make(chan []ServerInstance, 1)
	r.mu.Lock()
	r.watchers[name] = append(r.watchers[name], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[name]
		for i, w := range ws {
			if w == ch {
				r.watchers[name] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (r *MemoryRegistry) listLocked(name string) []ServerInstance {
	instances := make([]ServerInstance, 0, len(r.entries[name]))
	for _, inst := range r.entries[name] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Addr < instances[j].Addr })
	return instances
}

// notifyLocked replaces any unread update with the latest list.
func (r *MemoryRegistry) notifyLocked(name string) {
	list := r.listLocked(name)
	for _, ch := range r.watchers[name] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
