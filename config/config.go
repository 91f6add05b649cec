// Package config loads controller settings.
//
// Values are resolved in this order, later ones winning: built-in defaults,
// the YAML file, GBX_* environment variables, command line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"gbxremote/protocol"
	"gbxremote/transport"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "GBX_"

// Config holds the settings of a controller process.
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxRequestSize  int           `yaml:"max_request_size"`
	MaxResponseSize int           `yaml:"max_response_size"`

	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	RateLimit     float64       `yaml:"rate_limit"` // Queries per second, 0 disables
	RateBurst     int           `yaml:"rate_burst"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	PollInterval  time.Duration `yaml:"poll_interval"`

	ServerName    string   `yaml:"server_name"` // Registry name to discover instead of Host/Port
	Balancer      string   `yaml:"balancer"`
	EtcdEndpoints []string `yaml:"etcd_endpoints"`

	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`

	ConfigFile string `yaml:"-"`
}

// SetDefaults fills every unset field with its built-in default.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 5000
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = protocol.DefaultMaxRequestSize
	}
	if c.MaxResponseSize == 0 {
		c.MaxResponseSize = protocol.DefaultMaxResponseSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.Balancer == "" {
		c.Balancer = "round-robin"
	}
	if c.RedisChannel == "" {
		c.RedisChannel = "gbxremote:callbacks"
	}
}

// LoadFile populates the config from a YAML file.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		return v
	}
	return def
}

// ApplyEnv overlays GBX_* environment variables. Malformed numbers and
// durations are ignored.
func (c *Config) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("HOST", ""); v != "" {
		c.Host = v
	}
	if v := getEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	envDuration("CONNECT_TIMEOUT", &c.ConnectTimeout)
	envDuration("READ_TIMEOUT", &c.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &c.WriteTimeout)
	envInt("MAX_REQUEST_SIZE", &c.MaxRequestSize)
	envInt("MAX_RESPONSE_SIZE", &c.MaxResponseSize)
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("METRICS_ADDR", ""); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	}
	if v := getEnv("RATE_LIMIT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit = f
		}
	}
	envInt("RATE_BURST", &c.RateBurst)
	envInt("RETRY_ATTEMPTS", &c.RetryAttempts)
	envDuration("RETRY_DELAY", &c.RetryDelay)
	envDuration("POLL_INTERVAL", &c.PollInterval)
	if v := getEnv("SERVER_NAME", ""); v != "" {
		c.ServerName = v
	}
	if v := getEnv("BALANCER", ""); v != "" {
		c.Balancer = v
	}
	if v := getEnv("ETCD_ENDPOINTS", ""); v != "" {
		c.EtcdEndpoints = splitComma(v)
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := getEnv("REDIS_CHANNEL", ""); v != "" {
		c.RedisChannel = v
	}
}

func envInt(key string, dst *int) {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := getEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// BindFlags binds command line flags using the current values as defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "config file path")
	fs.StringVar(&c.Host, "host", c.Host, "dedicated server host")
	fs.IntVar(&c.Port, "port", c.Port, "dedicated server XML-RPC port")
	fs.DurationVar(&c.ConnectTimeout, "connect-timeout", c.ConnectTimeout, "connect and handshake timeout")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "per-frame read timeout")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "per-frame write timeout")
	fs.IntVar(&c.MaxRequestSize, "max-request-size", c.MaxRequestSize, "largest request frame in bytes, header included")
	fs.IntVar(&c.MaxResponseSize, "max-response-size", c.MaxResponseSize, "largest response payload in bytes")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus metrics listen address; empty disables")
	fs.Float64Var(&c.RateLimit, "rate-limit", c.RateLimit, "queries per second sent to the server, 0 for unlimited")
	fs.IntVar(&c.RateBurst, "rate-burst", c.RateBurst, "burst allowed above the rate limit")
	fs.IntVar(&c.RetryAttempts, "retry-attempts", c.RetryAttempts, "retries when the server answers \"Change in progress.\"")
	fs.DurationVar(&c.RetryDelay, "retry-delay", c.RetryDelay, "first retry delay, doubled on each attempt")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "callback polling interval")
	fs.StringVar(&c.ServerName, "server-name", c.ServerName, "discover the server registered under this name")
	fs.StringVar(&c.Balancer, "balancer", c.Balancer, "server selection strategy (round-robin, weighted-random, consistent-hash)")
	fs.StringSliceVar(&c.EtcdEndpoints, "etcd", c.EtcdEndpoints, "etcd endpoints for server discovery")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "publish callbacks to this redis (host:port or URL)")
	fs.StringVar(&c.RedisChannel, "redis-channel", c.RedisChannel, "redis channel for callbacks")
}

// Load resolves defaults, then the file named by GBX_CONFIG_FILE (or
// ConfigFile) if any, then the environment. Flags are applied by the caller
// after Load, since they were bound to these values.
func (c *Config) Load() error {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if c.ConfigFile != "" {
		if err := c.LoadFile(c.ConfigFile); err != nil {
			return err
		}
	}
	c.ApplyEnv()
	c.SetDefaults()
	return nil
}

// Resolve is Load for a command whose flags are bound to c and already
// parsed: flags set on the command line are applied again on top of the
// file and environment.
func (c *Config) Resolve(fs *pflag.FlagSet) error {
	values := map[string]string{}
	slices := map[string][]string{}
	fs.Visit(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			slices[f.Name] = sv.GetSlice()
			return
		}
		values[f.Name] = f.Value.String()
	})

	*c = Config{ConfigFile: c.ConfigFile}
	if err := c.Load(); err != nil {
		return err
	}

	for name, v := range values {
		if err := fs.Set(name, v); err != nil {
			return err
		}
	}
	for name, v := range slices {
		if err := fs.Lookup(name).Value.(pflag.SliceValue).Replace(v); err != nil {
			return err
		}
	}
	return nil
}

// Addr returns host:port of the dedicated server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TransportOptions maps the config to transport options.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		ConnectTimeout:  c.ConnectTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		MaxRequestSize:  c.MaxRequestSize,
		MaxResponseSize: c.MaxResponseSize,
	}
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
