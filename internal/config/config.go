// Package config assembles gateway settings with precedence
// file > environment > defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Presence  PresenceConfig  `yaml:"presence"`
	Broker    BrokerConfig    `yaml:"broker"`
	Auth      AuthConfig      `yaml:"auth"`
	Limits    LimitsConfig    `yaml:"limits"`
}

type HTTPConfig struct {
	Host         string        `yaml:"host" env:"GATEWAY_HTTP_HOST" envDefault:"0.0.0.0"`
	Port         int           `yaml:"port" env:"GATEWAY_HTTP_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"GATEWAY_HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"GATEWAY_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
}

type StoreConfig struct {
	Path         string        `yaml:"path" env:"GATEWAY_STORE_PATH" envDefault:"./gateway.db"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"GATEWAY_STORE_WRITE_TIMEOUT" envDefault:"30s"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval" env:"GATEWAY_WS_PING_INTERVAL" envDefault:"30s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"GATEWAY_WS_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"GATEWAY_WS_WRITE_TIMEOUT" envDefault:"5s"`
	AuthTimeout  time.Duration `yaml:"auth_timeout" env:"GATEWAY_WS_AUTH_TIMEOUT" envDefault:"10s"`
	WriteBuffer  int           `yaml:"write_buffer" env:"GATEWAY_WS_WRITE_BUFFER" envDefault:"100"`
}

type PresenceConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env:"GATEWAY_PRESENCE_SWEEP_INTERVAL" envDefault:"30s"`
	Threshold     time.Duration `yaml:"threshold" env:"GATEWAY_PRESENCE_THRESHOLD" envDefault:"2m"`
}

type BrokerConfig struct {
	RecentBuffer int `yaml:"recent_buffer" env:"GATEWAY_BROKER_RECENT_BUFFER" envDefault:"100"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"GATEWAY_JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"GATEWAY_JWT_ISSUER"`
}

// LimitsConfig carries the per-action rate limits enforced by the router.
type LimitsConfig struct {
	ChatPerMinute    int           `yaml:"chat_per_minute" env:"GATEWAY_LIMIT_CHAT_PER_MINUTE" envDefault:"30"`
	PrivatePerMinute int           `yaml:"private_per_minute" env:"GATEWAY_LIMIT_PRIVATE_PER_MINUTE" envDefault:"30"`
	JoinPerMinute    int           `yaml:"join_per_minute" env:"GATEWAY_LIMIT_JOIN_PER_MINUTE" envDefault:"20"`
	QueryPerMinute   int           `yaml:"query_per_minute" env:"GATEWAY_LIMIT_QUERY_PER_MINUTE" envDefault:"60"`
	GenericPerMinute int           `yaml:"generic_per_minute" env:"GATEWAY_LIMIT_GENERIC_PER_MINUTE" envDefault:"100"`
	ChatBurst        int           `yaml:"chat_burst" env:"GATEWAY_LIMIT_CHAT_BURST" envDefault:"10"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" env:"GATEWAY_LIMIT_CLEANUP_INTERVAL" envDefault:"1m"`
	EntryMaxIdle     time.Duration `yaml:"entry_max_idle" env:"GATEWAY_LIMIT_ENTRY_MAX_IDLE" envDefault:"5m"`
}

// Load builds the configuration: env variables over defaults, then an
// optional YAML file (with ${VAR} expansion) over both, then validation.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in defaults (no env, no file). Panics only if
// the envDefault tags themselves are malformed, which is a programming
// error caught by tests.
func Default() *Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 ||
		c.WebSocket.WriteTimeout <= 0 || c.WebSocket.AuthTimeout <= 0 {
		return fmt.Errorf("websocket timeouts must be positive")
	}
	if c.WebSocket.WriteBuffer <= 0 {
		return fmt.Errorf("websocket write buffer must be positive")
	}
	if c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("presence sweep interval must be positive")
	}
	// Threshold needs headroom over the sweep interval or jitter between
	// sweeps will flap active actors offline.
	if c.Presence.Threshold < 2*c.Presence.SweepInterval {
		return fmt.Errorf("presence threshold must be at least twice the sweep interval")
	}
	if c.Broker.RecentBuffer <= 0 {
		return fmt.Errorf("broker recent buffer must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt secret is required")
	}
	if c.Limits.ChatPerMinute <= 0 || c.Limits.PrivatePerMinute <= 0 ||
		c.Limits.JoinPerMinute <= 0 || c.Limits.QueryPerMinute <= 0 ||
		c.Limits.GenericPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}
