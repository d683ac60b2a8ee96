package cache

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type tickInfo struct {
	tick string
}

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()

	c, err := NewRistrettoCache(&RistrettoConfig{
		Name:        "test",
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(c.Close)

	return c.(*RistrettoCache)
}

func TestNewRistrettoCache_RequiresLogger(t *testing.T) {
	if _, err := NewRistrettoCache(&RistrettoConfig{NumCounters: 10, MaxCost: 1, BufferItems: 64}); err == nil {
		t.Error("expected error without logger")
	}
	if _, err := NewRistrettoCache(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestRistrettoCache(t *testing.T) {
	cache := newTestCache(t)

	t.Run("set-and-get", func(t *testing.T) {
		if !cache.Set("token:1", &tickInfo{tick: "0.01"}, time.Hour) {
			t.Skip("ristretto rejected the set")
		}
		cache.Wait()

		got, found := Get[*tickInfo](cache, "token:1")
		if !found {
			t.Fatal("expected key to be found")
		}
		if got.tick != "0.01" {
			t.Errorf("tick = %q, want 0.01", got.tick)
		}
	})

	t.Run("typed-get-wrong-type", func(t *testing.T) {
		cache.Set("token:2", "plain string", time.Hour)
		cache.Wait()

		if _, found := Get[*tickInfo](cache, "token:2"); found {
			t.Error("wrong type should be a miss")
		}
	})

	t.Run("get-missing-key", func(t *testing.T) {
		if _, found := cache.Get("nonexistent"); found {
			t.Error("expected key to not be found")
		}
	})

	t.Run("delete", func(t *testing.T) {
		cache.Set("delete-test", "v", time.Hour)
		cache.Wait()

		cache.Delete("delete-test")

		if _, found := cache.Get("delete-test"); found {
			t.Error("expected key to be deleted")
		}
	})

	t.Run("ttl-expiration", func(t *testing.T) {
		cache.Set("ttl-test", "v", 200*time.Millisecond)
		cache.Wait()

		if _, found := cache.Get("ttl-test"); !found {
			t.Skip("ristretto rejected the set")
		}

		time.Sleep(300 * time.Millisecond)

		if _, found := cache.Get("ttl-test"); found {
			t.Error("expected key to be expired after TTL")
		}
	})

	t.Run("clear", func(t *testing.T) {
		cache.Set("clear-key1", "value1", time.Hour)
		cache.Set("clear-key2", "value2", time.Hour)
		cache.Wait()

		cache.Clear()

		_, found1 := cache.Get("clear-key1")
		_, found2 := cache.Get("clear-key2")
		if found1 || found2 {
			t.Error("expected all keys to be cleared")
		}
	})
}

func TestGet_NilCache(t *testing.T) {
	if _, found := Get[string](nil, "k"); found {
		t.Error("nil cache should always miss")
	}
}

func TestRistrettoCache_HitRatio(t *testing.T) {
	cache := newTestCache(t)

	cache.Set("k", "v", time.Hour)
	cache.Wait()
	if _, found := cache.Get("k"); !found {
		t.Skip("ristretto rejected the set")
	}
	cache.Get("missing")

	if ratio := cache.HitRatio(); ratio <= 0 || ratio >= 1 {
		t.Errorf("HitRatio() = %v, want strictly between 0 and 1", ratio)
	}
}
