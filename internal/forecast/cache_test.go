package forecast

import (
	"testing"
	"time"
)

func TestCacheGetSet(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	c := NewCache()
	c.clock = func() time.Time { return now }

	key := CacheKey(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), 7, ModeEnsemble)
	payload := Result{GeneratedAt: now, HorizonDays: 7, ModelVersion: "prophet-2.0"}

	if _, ok := c.Get(key); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set(key, payload, time.Hour)
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.GeneratedAt.Equal(payload.GeneratedAt) || got.ModelVersion != payload.ModelVersion {
		t.Fatalf("cached payload must come back unchanged, got %+v", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	c := NewCache()
	c.clock = func() time.Time { return now }

	c.Set("k", Result{HorizonDays: 7}, time.Hour)

	now = now.Add(59 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should still be live before the TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should be stale after the TTL")
	}
	if c.Len() != 0 {
		t.Fatal("stale entry should be evicted on read")
	}
}

func TestCacheReplaceNotMerge(t *testing.T) {
	c := NewCache()
	c.Set("k", Result{ModelVersion: "old"}, time.Hour)
	c.Set("k", Result{ModelVersion: "new"}, time.Hour)

	got, ok := c.Get("k")
	if !ok || got.ModelVersion != "new" {
		t.Fatalf("second set should replace the entry, got %+v ok=%v", got, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected a single live entry per key, got %d", c.Len())
	}
}

func TestCacheInvalidateAll(t *testing.T) {
	c := NewCache()
	c.Set("a", Result{}, time.Hour)
	c.Set("b", Result{}, time.Hour)

	c.InvalidateAll()

	if _, ok := c.Get("a"); ok {
		t.Fatal("invalidateAll should drop every entry")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCacheKeyDependsOnPriceDate(t *testing.T) {
	d1 := time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	if CacheKey(d1, 7, ModeEnsemble) == CacheKey(d2, 7, ModeEnsemble) {
		t.Fatal("keys for different price dates must differ")
	}
	if CacheKey(d1, 7, ModeEnsemble) == CacheKey(d1, 14, ModeEnsemble) {
		t.Fatal("keys for different horizons must differ")
	}
	if CacheKey(d1, 7, ModeEnsemble) == CacheKey(d1, 7, ModeSingle) {
		t.Fatal("keys for different modes must differ")
	}
}
