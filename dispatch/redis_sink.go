package dispatch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel callbacks are published on.
const DefaultChannel = "gbxremote:callbacks"

// RedisSink publishes callbacks as JSON events on a Redis pub/sub channel,
// for consumers that are not connected to the dedicated server.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisSink connects to addr, either "host:port" or a redis://,
// rediss:// or redis-sentinel:// URL.
func NewRedisSink(ctx context.Context, addr, channel string) (*RedisSink, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	if channel == "" {
		channel = DefaultChannel
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, err
	}
	return &RedisSink{client: c, channel: channel}, nil
}

// Publish sends ev to the channel.
func (s *RedisSink) Publish(ctx context.Context, ev *Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Method, err)
	}
	return s.client.Publish(ctx, s.channel, b).Err()
}

// Channel returns the channel events are published on.
func (s *RedisSink) Channel() string {
	return s.channel
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

// parseRedisURL maps addr to UniversalOptions for single, cluster and
// sentinel deployments. Without a scheme addr is a plain host:port.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	opts.Addrs = strings.Split(u.Host, ",")

	q := u.Query()
	db := strings.TrimPrefix(u.Path, "/")
	switch u.Scheme {
	case "redis", "rediss":
		if db == "" {
			db = q.Get("db")
		}
		if u.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = db
		db = q.Get("db")
		opts.SentinelUsername = q.Get("sentinel_username")
		opts.SentinelPassword = q.Get("sentinel_password")
		if u.Scheme == "rediss-sentinel" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}

	if db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid db: %v", err)
		}
		opts.DB = n
	}
	return opts, nil
}
