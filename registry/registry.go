// Package registry keeps a directory of reachable dedicated servers.
//
// A dedicated server (or the process supervising it) registers the address
// of its XML-RPC port under a logical name such as "elite-cup". Controllers
// discover the instances behind a name and pick one with a loadbalance
// strategy before connecting.
package registry

import "context"

// ServerInstance describes one dedicated server's XML-RPC endpoint.
type ServerInstance struct {
	Addr    string `json:"addr"`             // host:port of the XML-RPC port
	Login   string `json:"login,omitempty"`  // Server account login
	Title   string `json:"title,omitempty"`  // Title pack, e.g. "TMStadium@nadeo"
	Weight  int    `json:"weight,omitempty"` // Relative capacity for weighted picking
	Version string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, name string, instance ServerInstance, ttl int64) error
	Deregister(ctx context.Context, name string, addr string) error
	Discover(ctx context.Context, name string) ([]ServerInstance, error)
	Watch(ctx context.Context, name string) <-chan []ServerInstance
}
