package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

// setupRedis connects to TEST_REDIS_URL and skips when it is not set.
func setupRedis(t *testing.T) *RedisCache {
	t.Helper()
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	rc, err := NewRedisCache(redisURL)
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	rc.prefix = "tours-test:" + t.Name() + ":"
	t.Cleanup(func() {
		_, _ = rc.DeleteByPattern(context.Background(), "*")
		_ = rc.Close()
	})
	if err := rc.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return rc
}

func TestRedisCacheRoundTrip(t *testing.T) {
	rc := setupRedis(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "k", []byte("hello"), 10*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, found, err := rc.Get(ctx, "k")
	if err != nil || !found || string(value) != "hello" {
		t.Fatalf("unexpected Get result %q, %v, %v", value, found, err)
	}
	if _, found, _ := rc.Get(ctx, "missing"); found {
		t.Fatalf("expected miss")
	}
}

func TestRedisCacheDeleteByPattern(t *testing.T) {
	rc := setupRedis(t)
	ctx := context.Background()
	for _, key := range []string{"search_params:1", "search_params:2", "countries:ru"} {
		if err := rc.Set(ctx, key, []byte("x"), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	removed, err := rc.DeleteByPattern(ctx, "search_params:*")
	if err != nil {
		t.Fatalf("DeleteByPattern: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 keys removed, got %d", removed)
	}
	if _, found, _ := rc.Get(ctx, "countries:ru"); !found {
		t.Fatalf("unmatched keys must survive")
	}
}
