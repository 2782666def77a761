package pubsub

import (
	"fmt"
	"time"
)

// Config holds the configuration for the bus.
type Config struct {
	Driver string      `mapstructure:"driver"` // "local", "redis", "memory"
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver: "local",
		Redis: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// NewPubSub creates the configured bus. The "local" driver means a single
// instance needs no bus, and nil is returned.
func NewPubSub(cfg Config) (PubSub, error) {
	switch cfg.Driver {
	case "", "local":
		return nil, nil
	case "redis":
		return NewRedisPubSub(cfg.Redis)
	case "memory":
		return NewMemoryPubSub(), nil
	default:
		return nil, fmt.Errorf("unsupported pubsub driver: %s", cfg.Driver)
	}
}
