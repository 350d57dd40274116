package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type item struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)
	defer c.Close()

	var got item
	found, err := c.Get(ctx, "a", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "a", item{Title: "Go", Count: 1}, time.Minute))
	found, err = c.Get(ctx, "a", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, item{Title: "Go", Count: 1}, got)

	// no ttl, not stored
	require.NoError(t, c.Set(ctx, "b", item{}, 0))
	assert.Equal(t, 1, c.Len())

	// size limit evicts the least recently used entry
	require.NoError(t, c.Set(ctx, "b", item{Title: "Rust"}, time.Minute))
	require.NoError(t, c.Set(ctx, "c", item{Title: "Zig"}, time.Minute))
	assert.Equal(t, 2, c.Len())
	found, _ = c.Get(ctx, "a", &got)
	assert.False(t, found)

	// overwriting keeps the size
	require.NoError(t, c.Set(ctx, "c", item{Title: "Zig", Count: 2}, time.Minute))
	assert.Equal(t, 2, c.Len())
	found, _ = c.Get(ctx, "c", &got)
	assert.True(t, found)
	assert.Equal(t, 2, got.Count)

	require.NoError(t, c.Delete(ctx, "b", "c", "unknown"))
	assert.Equal(t, 0, c.Len())

	// undecodable value
	require.NoError(t, c.Set(ctx, "d", "text", time.Minute))
	_, err = c.Get(ctx, "d", &got)
	assert.Error(t, err)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	require.NoError(t, c.Set(ctx, "a", 1, 20*time.Millisecond))
	require.NoError(t, c.Set(ctx, "b", 2, time.Hour))

	var got int
	assert.Eventually(t, func() bool {
		found, _ := c.Get(ctx, "a", &got)
		return !found
	}, time.Second, 5*time.Millisecond)

	// purged by the janitor
	assert.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	found, err := c.Get(ctx, "b", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, got)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
