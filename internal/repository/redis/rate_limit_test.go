package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRepo(t *testing.T) (*RateLimitRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRateLimitRepository(client, "test:rl"), mr
}

func TestRateLimitRepository_AllowsUpToLimit(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		decision, err := repo.Allow(ctx, "10.0.0.1", 3, time.Minute, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !decision.Allowed || decision.Count != i {
			t.Fatalf("attempt %d: unexpected decision %+v", i, decision)
		}
	}

	decision, err := repo.Allow(ctx, "10.0.0.1", 3, time.Minute, now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("Allow over limit: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected fourth attempt to be rejected")
	}
	// oldest attempt at +1s leaves the window at +61s
	if decision.RetryAfter != 51*time.Second {
		t.Fatalf("expected 51s retry, got %s", decision.RetryAfter)
	}

	if !mr.Exists("test:rl:10.0.0.1") {
		t.Fatal("expected window key with prefix")
	}
}

func TestRateLimitRepository_WindowSlides(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := repo.Allow(ctx, "client", 2, time.Minute, now); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}
	if d, _ := repo.Allow(ctx, "client", 2, time.Minute, now.Add(30*time.Second)); d.Allowed {
		t.Fatal("expected rejection inside the window")
	}

	d, err := repo.Allow(ctx, "client", 2, time.Minute, now.Add(61*time.Second))
	if err != nil {
		t.Fatalf("Allow after window: %v", err)
	}
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", d)
	}

	if d, _ := repo.Allow(ctx, "other", 2, time.Minute, now.Add(30*time.Second)); !d.Allowed {
		t.Fatal("identifiers must not share windows")
	}
}

func TestRateLimitRepository_RejectsBadArguments(t *testing.T) {
	repo, _ := newTestRepo(t)
	if _, err := repo.Allow(context.Background(), "x", 0, time.Minute, time.Now()); err == nil {
		t.Fatal("expected error for zero limit")
	}
	if _, err := repo.Allow(context.Background(), "x", 1, 0, time.Now()); err == nil {
		t.Fatal("expected error for zero window")
	}
}
