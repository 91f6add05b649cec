package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"gbxremote/logx"
)

// KeyPrefix roots every entry:
//
//	Key:   /gbxremote/servers/{name}/{addr}
//	Value: JSON-encoded ServerInstance
//
// Entries are attached to a TTL lease, so a supervisor that dies without
// deregistering disappears once the lease expires.
const KeyPrefix = "/gbxremote/servers/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // Thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Close releases the etcd connection.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

func prefix(name string) string {
	return KeyPrefix + name + "/"
}

// Register stores instance under a lease of ttl seconds and keeps the lease
// alive until ctx ends.
//
// The lease id is local on purpose: several servers may share one
// EtcdRegistry.
func (r *EtcdRegistry) Register(ctx context.Context, name string, instance ServerInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, prefix(name)+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keepalive responses so the channel never fills up.
	go func() {
		for range ch {
		}
		logx.Log.Debug().Str("name", name).Str("addr", instance.Addr).Msg("registry lease keepalive stopped")
	}()
	return nil
}

// Deregister removes an instance right away, before its lease expires.
func (r *EtcdRegistry) Deregister(ctx context.Context, name string, addr string) error {
	_, err := r.client.Delete(ctx, prefix(name)+addr)
	return err
}

// Watch emits the full instance list of name whenever it changes. The
// channel is closed when ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan []ServerInstance {
	ch := make(chan []ServerInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, prefix(name), clientv3.WithPrefix())
		for range watchChan {
			// Re-read the whole list rather than applying individual events.
			instances, err := r.Discover(ctx, name)
			if err != nil {
				logx.Log.Warn().Err(err).Str("name", name).Msg("registry rediscovery failed")
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns every instance currently registered under name.
func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]ServerInstance, error) {
	resp, err := r.client.Get(ctx, prefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServerInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServerInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			logx.Log.Warn().Str("key", string(kv.Key)).Err(err).Msg("skipping malformed registry entry")
			continue
		}
		instances = append(instances, instance)
	}

	return instances, nil
}
