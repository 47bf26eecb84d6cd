package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// setupMiniredisTest creates a Redis-backed cache against an in-process miniredis
func setupMiniredisTest(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)

	config := DefaultRedisConfig()
	config.KeyPrefix = "test:"
	config.TTL = time.Minute

	// CLIENT SETINFO is not understood by miniredis
	client := redis.NewClient(&redis.Options{
		Addr:             s.Addr(),
		DisableIndentity: true,
	})

	c := NewRedisCacheWithClient(client, config, zap.NewNop())
	t.Cleanup(func() {
		c.Close()
	})
	return c, s
}

// setupMiniredisClusterTest points a cluster client at miniredis, which
// reports itself as a single master owning every slot
func setupMiniredisClusterTest(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)

	config := DefaultRedisConfig()
	config.KeyPrefix = "test:"
	config.TTL = time.Minute
	config.ClusterEnabled = true

	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:            []string{s.Addr()},
		DisableIndentity: true,
	})

	c := NewRedisCacheWithClient(client, config, zap.NewNop())
	t.Cleanup(func() {
		c.Close()
	})
	return c, s
}
