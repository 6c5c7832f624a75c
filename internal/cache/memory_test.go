package cache

import (
	"context"
	"testing"
	"time"

	"github.com/t3m14/tours-sub000/internal/domain"
)

func TestMemoryCacheSetGetDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, found, err := c.Get(ctx, "k")
	if err != nil || !found || string(value) != "v" {
		t.Fatalf("unexpected Get result %q, %v, %v", value, found, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatalf("expected key deleted")
	}
}

func TestMemoryCacheExpiresEntries(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("1"), time.Second)
	_ = c.Set(ctx, "forever", []byte("2"), 0)
	now = now.Add(2 * time.Second)

	if _, found, _ := c.Get(ctx, "short"); found {
		t.Fatalf("expected expired entry to be gone")
	}
	if _, found, _ := c.Get(ctx, "forever"); !found {
		t.Fatalf("entry without ttl must not expire")
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	for _, key := range []string{"search_params:1", "search_params:2", "countries:ru", "hotels:7"} {
		_ = c.Set(ctx, key, []byte("x"), time.Minute)
	}

	removed, err := c.DeleteByPattern(ctx, "search_params:*")
	if err != nil {
		t.Fatalf("DeleteByPattern: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 keys removed, got %d", removed)
	}
	if _, found, _ := c.Get(ctx, "countries:ru"); !found {
		t.Fatalf("unmatched keys must survive")
	}
	if _, err := c.DeleteByPattern(ctx, "[bad"); err == nil {
		t.Fatalf("expected malformed pattern error")
	}
}

func TestJSONHelpersRoundTripCriteria(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	key := SearchParamsKey("5830148812")
	if key != "search_params:5830148812" {
		t.Fatalf("unexpected key %q", key)
	}

	criteria := domain.SearchCriteria{Departure: 1, Country: 4, Adults: 2}
	if err := SetJSON(ctx, c, key, criteria, time.Hour); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var got domain.SearchCriteria
	found, err := GetJSON(ctx, c, key, &got)
	if err != nil || !found {
		t.Fatalf("GetJSON: %v, found=%v", err, found)
	}
	if got.Departure != 1 || got.Country != 4 || got.Adults != 2 {
		t.Fatalf("unexpected criteria %+v", got)
	}
	if found, _ := GetJSON(ctx, c, "missing", &got); found {
		t.Fatalf("expected miss")
	}
}
