package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheLazyExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(5 * time.Second)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v1")))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(v))

	require.NoError(t, c.Set(ctx, "k", []byte("v2")))
	v, _, _ = c.Get(ctx, "k")
	assert.Equal(t, "v2", string(v), "后写覆盖")

	now = now.Add(5 * time.Second)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "读取时删除过期条目")
}

func TestMemoryCachePurge(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10 * time.Second)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "old", []byte("1")))
	now = now.Add(6 * time.Second)
	require.NoError(t, c.Set(ctx, "new", []byte("2")))
	now = now.Add(5 * time.Second)

	removed, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheMinimumTTL(t *testing.T) {
	c := NewMemoryCache(0)
	assert.Equal(t, time.Second, c.TTL())
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	type payload struct {
		Answer string `json:"answer"`
	}
	require.NoError(t, SetJSON(ctx, c, "a", payload{Answer: "ok"}))

	got, ok, err := GetJSON[payload](ctx, c, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ok", got.Answer)

	_, ok, err = GetJSON[payload](ctx, c, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
