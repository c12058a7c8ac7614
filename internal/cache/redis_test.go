package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c := &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		logger: zerolog.Nop(),
	}
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedisSetGet(t *testing.T) {
	_, c := setupMiniRedis(t)

	c.Set("meters", []byte(`[{"id":0}]`), 5*time.Minute)

	got, found := c.Get("meters")
	if !found {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(got, []byte(`[{"id":0}]`)) {
		t.Errorf("got %q", got)
	}

	s := c.Stats()
	if s.Sets != 1 || s.Hits != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRedisGetMissing(t *testing.T) {
	_, c := setupMiniRedis(t)

	if _, found := c.Get("absent"); found {
		t.Error("expected miss")
	}
	if s := c.Stats(); s.Misses != 1 {
		t.Errorf("Misses = %d, want 1", s.Misses)
	}
}

func TestRedisTTLExpiry(t *testing.T) {
	mr, c := setupMiniRedis(t)

	c.Set("snapshot", []byte("v1"), time.Second)
	if _, found := c.Get("snapshot"); !found {
		t.Fatal("fresh entry should hit")
	}

	mr.FastForward(2 * time.Second)
	if _, found := c.Get("snapshot"); found {
		t.Error("entry should expire after TTL")
	}
}

func TestRedisDeleteAndClear(t *testing.T) {
	_, c := setupMiniRedis(t)

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)

	c.Delete("a")
	if _, found := c.Get("a"); found {
		t.Error("deleted key should miss")
	}

	c.Clear()
	if _, found := c.Get("b"); found {
		t.Error("Clear should flush the database")
	}
	if size := c.Stats().CurrentSize; size != 0 {
		t.Errorf("CurrentSize = %d after Clear", size)
	}
}

func TestRedisHealthCheck(t *testing.T) {
	mr, c := setupMiniRedis(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	mr.Close()
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail after server shutdown")
	}
}

func TestRedisConnectFailure(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	if err == nil {
		t.Fatal("connecting to a closed port should fail")
	}
}
