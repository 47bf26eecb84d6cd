package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authz-engine/pdp-core/pkg/types"
)

func permitWithObligation() types.Result {
	return types.Result{
		Value: types.Permit,
		Obligations: []types.Action{
			{On: types.Permit, ID: "log", Params: map[string]string{"level": "info"}},
		},
	}
}

func TestRedisCache_SetGet(t *testing.T) {
	c, s := setupMiniredisTest(t)

	c.Set("k1", permitWithObligation())

	assert.True(t, s.Exists("test:k1"))

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, types.Permit, got.Value)
	require.Len(t, got.Obligations, 1)
	assert.Equal(t, "log", got.Obligations[0].ID)
	assert.Equal(t, types.Permit, got.Obligations[0].On)
	assert.Equal(t, "info", got.Obligations[0].Params["level"])

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(0), stats.Misses)
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := setupMiniredisTest(t)

	_, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestRedisCache_UndecodableEntryIsMiss(t *testing.T) {
	c, s := setupMiniredisTest(t)

	require.NoError(t, s.Set("test:bad", "{not json"))

	_, ok := c.Get("bad")
	assert.False(t, ok)
}

func TestRedisCache_TTL(t *testing.T) {
	c, s := setupMiniredisTest(t)

	c.Set("k", types.Result{Value: types.Deny})
	assert.Equal(t, time.Minute, s.TTL("test:k"))

	s.FastForward(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestRedisCache_DeleteAndClear(t *testing.T) {
	c, s := setupMiniredisTest(t)

	c.Set("a", types.Result{Value: types.Permit})
	c.Set("b", types.Result{Value: types.Deny})
	require.NoError(t, s.Set("other:c", "untouched"))

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.True(t, s.Exists("other:c"), "clear must only touch the key prefix")
}

func TestRedisCache_ClearBeyondOneScanPage(t *testing.T) {
	c, s := setupMiniredisTest(t)

	for i := 0; i < 250; i++ {
		c.Set(fmt.Sprintf("k%d", i), types.Result{Value: types.Permit})
	}
	require.NoError(t, s.Set("other:c", "untouched"))

	c.Clear()
	assert.Equal(t, []string{"other:c"}, s.Keys())
}

func TestRedisCache_ClearCluster(t *testing.T) {
	c, s := setupMiniredisClusterTest(t)

	c.Set("a", types.Result{Value: types.Permit})
	c.Set("b", types.Result{Value: types.Deny})
	require.NoError(t, s.Set("other:c", "untouched"))
	require.True(t, s.Exists("test:a"))

	c.Clear()
	assert.False(t, s.Exists("test:a"))
	assert.False(t, s.Exists("test:b"))
	assert.True(t, s.Exists("other:c"))
}

func TestRedisConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RedisConfig)
		wantErr bool
	}{
		{"defaults", func(*RedisConfig) {}, false},
		{"empty host", func(c *RedisConfig) { c.Host = "" }, true},
		{"bad port", func(c *RedisConfig) { c.Port = 70000 }, true},
		{"zero pool", func(c *RedisConfig) { c.PoolSize = 0 }, true},
		{"zero ttl", func(c *RedisConfig) { c.TTL = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRedisConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				var cerr *CacheError
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, "INVALID_CONFIG", cerr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHybridCache_BackfillsL1(t *testing.T) {
	l2, _ := setupMiniredisTest(t)
	h := NewHybridCache(10, time.Minute, l2)

	l2.Set("k", types.Result{Value: types.Deny})

	got, ok := h.Get("k")
	require.True(t, ok)
	assert.Equal(t, types.Deny, got.Value)

	_, ok = h.Get("k")
	require.True(t, ok)

	l1, l2Hits := h.LevelHits()
	assert.Equal(t, uint64(1), l1)
	assert.Equal(t, uint64(1), l2Hits)

	h.Clear()
	_, ok = h.Get("k")
	assert.False(t, ok)
}
