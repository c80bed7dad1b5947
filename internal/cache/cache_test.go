package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCache returns a cache with a controllable clock.
func newTestCache(defaultTTL time.Duration) (*Cache[string], *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New[string](defaultTTL)
	c.now = func() time.Time { return now }
	return c, &now
}

func Test_GetMiss(t *testing.T) {
	c, _ := newTestCache(10 * time.Second)

	v, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func Test_SetThenGet(t *testing.T) {
	c, _ := newTestCache(10 * time.Second)

	c.Set("k", "v")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func Test_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantHit bool
	}{
		{name: "immediately after set", advance: 0, wantHit: true},
		{name: "just before expiry", advance: 10*time.Second - time.Nanosecond, wantHit: true},
		{name: "exactly at expiry", advance: 10 * time.Second, wantHit: false},
		{name: "after expiry", advance: 11 * time.Second, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, now := newTestCache(10 * time.Second)
			c.Set("k", "v")

			*now = now.Add(tt.advance)

			v, ok := c.Get("k")
			assert.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, "v", v)
			}
		})
	}
}

func Test_ExpiredEntryIsRemovedOnGet(t *testing.T) {
	c, now := newTestCache(10 * time.Second)
	c.Set("k", "v")
	require.Equal(t, 1, c.Len())

	*now = now.Add(time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "lazy eviction should remove the expired entry")
}

func Test_SetTTLOverridesDefault(t *testing.T) {
	c, now := newTestCache(10 * time.Second)
	c.SetTTL("long", "v", time.Hour)

	*now = now.Add(30 * time.Minute)

	_, ok := c.Get("long")
	assert.True(t, ok, "entry with an hour TTL must survive 30 minutes")
}

func Test_OverwriteRefreshesExpiry(t *testing.T) {
	c, now := newTestCache(10 * time.Second)
	c.Set("k", "old")

	*now = now.Add(8 * time.Second)
	c.Set("k", "new")

	*now = now.Add(8 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok, "overwrite must restart the TTL window")
	assert.Equal(t, "new", v)
}

func Test_Invalidate(t *testing.T) {
	c, _ := newTestCache(10 * time.Second)
	c.Set("k", "v")

	c.Invalidate("k")

	_, ok := c.Get("k")
	assert.False(t, ok)

	// Invalidating an absent key is a no-op.
	c.Invalidate("absent")
}

func Test_RemoveExpiredSweep(t *testing.T) {
	c, now := newTestCache(10 * time.Second)
	c.Set("stale", "v")
	c.SetTTL("fresh", "v", time.Hour)

	*now = now.Add(time.Minute)
	c.removeExpired()

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func Test_ConcurrentAccess(t *testing.T) {
	c := New[string](time.Minute)

	const goroutines = 16
	const iterations = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("k-%d", i%8)
				c.Set(key, fmt.Sprintf("v-%d-%d", g, i))
				c.Get(key)
				if i%17 == 0 {
					c.Invalidate(key)
				}
			}
		}(g)
	}
	wg.Wait()
}

func Test_WriteThenReadObservesValue(t *testing.T) {
	c := New[int](time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Set("k", 42)
	}()
	<-done

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}
