package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// RedisCache implements Cache using Redis so that several decision points
// can share results.
type RedisCache struct {
	client redis.UniversalClient
	config *RedisConfig
	logger *zap.Logger
	hits   uint64
	misses uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(config *RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(config.Host, fmt.Sprintf("%d", config.Port))

	var client redis.UniversalClient
	switch {
	case config.ClusterEnabled:
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        []string{addr},
			Password:     config.Password,
			PoolSize:     config.PoolSize,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			DialTimeout:  config.DialTimeout,
			TLSConfig:    config.TLS,
		})
	case config.SentinelEnabled && len(config.SentinelAddrs) > 0:
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			SentinelAddrs: config.SentinelAddrs,
			MasterName:    config.MasterName,
			Password:      config.Password,
			DB:            config.DB,
			PoolSize:      config.PoolSize,
			ReadTimeout:   config.ReadTimeout,
			WriteTimeout:  config.WriteTimeout,
			DialTimeout:   config.DialTimeout,
			TLSConfig:     config.TLS,
		})
	default:
		client = redis.NewClient(&redis.Options{
			Addr:            addr,
			Password:        config.Password,
			DB:              config.DB,
			PoolSize:        config.PoolSize,
			PoolTimeout:     config.PoolTimeout,
			ConnMaxIdleTime: config.IdleTimeout,
			ReadTimeout:     config.ReadTimeout,
			WriteTimeout:    config.WriteTimeout,
			DialTimeout:     config.DialTimeout,
			TLSConfig:       config.TLS,
		})
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, ErrConnectionFailed(err)
	}

	return NewRedisCacheWithClient(client, config, logger), nil
}

// NewRedisCacheWithClient wraps an existing client without pinging it
func NewRedisCacheWithClient(client redis.UniversalClient, config *RedisConfig, logger *zap.Logger) *RedisCache {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisCache{
		client: client,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Get retrieves a decision result from Redis
func (c *RedisCache) Get(key string) (types.Result, bool) {
	data, err := c.client.Get(c.ctx, c.config.KeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Redis cache read failed", zap.Error(ErrOperationFailed("get", err)))
		}
		atomic.AddUint64(&c.misses, 1)
		return types.Result{}, false
	}

	var result types.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("Dropping undecodable cached decision",
			zap.String("key", key),
			zap.Error(ErrSerializationFailed(err)),
		)
		atomic.AddUint64(&c.misses, 1)
		return types.Result{}, false
	}

	atomic.AddUint64(&c.hits, 1)
	return result, true
}

// Set stores a decision result with the configured TTL
func (c *RedisCache) Set(key string, value types.Result) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Skipping cache write", zap.Error(ErrSerializationFailed(err)))
		return
	}
	if err := c.client.Set(c.ctx, c.config.KeyPrefix+key, data, c.config.TTL).Err(); err != nil {
		c.logger.Warn("Redis cache write failed", zap.Error(ErrOperationFailed("set", err)))
	}
}

// Delete removes a key from the cache
func (c *RedisCache) Delete(key string) {
	c.client.Del(c.ctx, c.config.KeyPrefix+key)
}

// Clear removes all entries under the key prefix. In cluster mode every
// master is scanned, and keys are deleted one per command so no delete
// spans hash slots.
func (c *RedisCache) Clear() {
	if cluster, ok := c.client.(*redis.ClusterClient); ok {
		err := cluster.ForEachMaster(c.ctx, func(ctx context.Context, node *redis.Client) error {
			return c.clearNode(ctx, node)
		})
		if err != nil {
			c.logger.Warn("Redis cluster cache clear failed", zap.Error(err))
		}
		return
	}
	if err := c.clearNode(c.ctx, c.client); err != nil {
		c.logger.Warn("Redis cache clear failed", zap.Error(err))
	}
}

func (c *RedisCache) clearNode(ctx context.Context, client redis.UniversalClient) error {
	iter := client.Scan(ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return ErrOperationFailed("scan", err)
	}
	if len(keys) == 0 {
		return nil
	}

	_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		return ErrOperationFailed("del", err)
	}
	return nil
}

// Stats returns cache statistics; Size is the size of the Redis database
func (c *RedisCache) Stats() Stats {
	size := 0
	if dbSize, err := c.client.DBSize(c.ctx).Result(); err == nil {
		size = int(dbSize)
	}
	return newStats(size, atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses))
}

// GetTTL returns the remaining TTL for a key
func (c *RedisCache) GetTTL(key string) time.Duration {
	ttl, err := c.client.TTL(c.ctx, c.config.KeyPrefix+key).Result()
	if err != nil {
		return -1
	}
	return ttl
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.cancel()
	return c.client.Close()
}
