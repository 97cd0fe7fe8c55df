package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheSetAndGet(t *testing.T) {
	c := NewTTLCache[string, int](2, time.Minute, nil, nil)
	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestTTLCachePopsOldestOnOverflow(t *testing.T) {
	var popped []string
	c := NewTTLCache[string, int](2, time.Minute, nil, func(k string, _ int) {
		popped = append(popped, k)
	})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	assert.Equal(t, []string{"a"}, popped)
	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
}

func TestTTLCacheExpireFiresCallback(t *testing.T) {
	var expired []string
	c := NewTTLCache[string, int](0, time.Millisecond, func(k string, _ int) {
		expired = append(expired, k)
	}, nil)
	c.now = func() time.Time { return time.Unix(0, 0) }
	c.Set("a", 1)

	c.now = func() time.Time { return time.Unix(0, 0).Add(time.Second) }
	n := c.Expire()

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, expired)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCachePopDoesNotFireCallback(t *testing.T) {
	fired := false
	c := NewTTLCache[string, int](0, time.Minute, func(string, int) { fired = true }, func(string, int) { fired = true })
	c.Set("a", 1)

	v, ok := c.Pop("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.False(t, fired)
	assert.False(t, c.Contains("a"))
}

func TestTTLCacheUnboundedWhenMaxSizeZero(t *testing.T) {
	c := NewTTLCache[string, int](0, time.Minute, nil, nil)
	for i := 0; i < 100; i++ {
		c.Set(string(rune('a'+i%26)), i)
	}
	assert.Equal(t, 26, c.Len())
}
