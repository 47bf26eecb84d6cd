package cache

import (
	"crypto/tls"
	"time"
)

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize    int
	PoolTimeout time.Duration
	IdleTimeout time.Duration

	// TTL for cached decisions
	TTL time.Duration

	TLS *tls.Config

	SentinelEnabled bool
	SentinelAddrs   []string
	MasterName      string
	ClusterEnabled  bool

	// KeyPrefix namespaces decision keys
	KeyPrefix string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// DefaultRedisConfig returns a configuration with sensible defaults
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		TTL:          5 * time.Minute,
		MasterName:   "mymaster",
		KeyPrefix:    "pdp:",
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	}
}

// Validate checks the configuration for validity
func (c *RedisConfig) Validate() error {
	if c.Host == "" {
		return ErrInvalidConfig("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidConfig("port must be between 1 and 65535")
	}
	if c.PoolSize <= 0 {
		return ErrInvalidConfig("pool_size must be greater than 0")
	}
	if c.TTL <= 0 {
		return ErrInvalidConfig("ttl must be greater than 0")
	}
	if c.DialTimeout <= 0 {
		return ErrInvalidConfig("dial_timeout must be greater than 0")
	}
	return nil
}
