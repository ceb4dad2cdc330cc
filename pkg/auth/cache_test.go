package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationCache_PutGet(t *testing.T) {
	cache := NewValidationCache[string](time.Minute, 10)

	_, ok := cache.Get("fp-1")
	assert.False(t, ok, "empty cache should miss")

	cache.Put("fp-1", "value-1")
	got, ok := cache.Get("fp-1")
	require.True(t, ok)
	assert.Equal(t, "value-1", got)
}

func TestValidationCache_TTLExpiry(t *testing.T) {
	cache := NewValidationCache[string](20*time.Millisecond, 10)

	cache.Put("fp-1", "value-1")
	_, ok := cache.Get("fp-1")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = cache.Get("fp-1")
	assert.False(t, ok, "entry should expire after TTL")
}

func TestValidationCache_PutUntil(t *testing.T) {
	cache := NewValidationCache[string](time.Hour, 10)

	// The explicit bound is earlier than the TTL and wins.
	cache.PutUntil("fp-short", "v", time.Now().Add(20*time.Millisecond))
	_, ok := cache.Get("fp-short")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = cache.Get("fp-short")
	assert.False(t, ok, "entry should not outlive its explicit bound")
}

func TestValidationCache_PutUntil_AlreadyExpired(t *testing.T) {
	cache := NewValidationCache[string](time.Hour, 10)

	cache.PutUntil("fp-1", "v", time.Now().Add(-time.Second))
	assert.Equal(t, 0, cache.Len(), "an already-expired value must not be stored")
}

func TestValidationCache_Evict(t *testing.T) {
	cache := NewValidationCache[string](time.Minute, 10)

	cache.Put("fp-1", "value-1")
	cache.Evict("fp-1")
	_, ok := cache.Get("fp-1")
	assert.False(t, ok)

	// Evicting an absent key is a no-op.
	cache.Evict("fp-missing")
}

func TestValidationCache_SizeBound(t *testing.T) {
	cache := NewValidationCache[int](time.Minute, 3)

	for i := 0; i < 5; i++ {
		cache.Put(fmt.Sprintf("fp-%d", i), i)
	}
	assert.LessOrEqual(t, cache.Len(), 3, "cache must never exceed its size bound")
}

func TestValidationCache_SizeBound_ReplaceDoesNotEvict(t *testing.T) {
	cache := NewValidationCache[int](time.Minute, 2)

	cache.Put("fp-a", 1)
	cache.Put("fp-b", 2)
	cache.Put("fp-a", 3)

	got, ok := cache.Get("fp-b")
	require.True(t, ok, "replacing an existing key must not evict another entry")
	assert.Equal(t, 2, got)
	got, ok = cache.Get("fp-a")
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestValidationCache_ConcurrentAccess(t *testing.T) {
	cache := NewValidationCache[int](time.Minute, 100)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("fp-%d", i%50)
				cache.Put(key, g)
				cache.Get(key)
				if i%10 == 0 {
					cache.Evict(key)
				}
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
