package application

import (
	"testing"
	"time"

	"github.com/example/slot-reservations/internal/roster"
)

func TestSessionCacheStoresAndReturnsCopies(t *testing.T) {
	current := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSessionCache(time.Minute, 4, func() time.Time { return current })

	original := SessionDetails{ID: "s1", Teams: []roster.TeamLayout{{Name: "Team A", Capacity: 3}}}
	cache.Store("s1", original)

	// Mutating the original slice should not affect the cached copy.
	original.Teams[0].Name = "mutated"

	cached, ok := cache.Get("s1")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached.Teams[0].Name != "Team A" {
		t.Fatalf("expected cached team to remain unchanged, got %s", cached.Teams[0].Name)
	}

	cached.Teams[0].Capacity = 99
	again, _ := cache.Get("s1")
	if again.Teams[0].Capacity != 3 {
		t.Fatalf("expected cache to return independent copy, got %d", again.Teams[0].Capacity)
	}
}

func TestSessionCacheExpiresEntries(t *testing.T) {
	current := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSessionCache(time.Second, 4, func() time.Time { return current })

	cache.Store("s1", SessionDetails{ID: "s1"})
	if _, ok := cache.Get("s1"); !ok {
		t.Fatalf("expected cache hit before expiry")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("s1"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestSessionCacheBoundsEntries(t *testing.T) {
	current := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSessionCache(time.Minute, 2, func() time.Time { return current })

	cache.Store("first", SessionDetails{ID: "first"})
	current = current.Add(time.Second)
	cache.Store("second", SessionDetails{ID: "second"})
	current = current.Add(time.Second)
	cache.Store("third", SessionDetails{ID: "third"})

	if _, ok := cache.Get("first"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if _, ok := cache.Get("third"); !ok {
		t.Fatalf("expected newest entry to be cached")
	}
}

func TestSessionCacheInvalidateAndDisabled(t *testing.T) {
	cache := newSessionCache(time.Minute, 4, time.Now)
	cache.Store("s1", SessionDetails{ID: "s1"})
	cache.Invalidate("s1")
	if _, ok := cache.Get("s1"); ok {
		t.Fatalf("expected entry to be removed after invalidation")
	}

	disabled := newSessionCache(0, 0, nil)
	disabled.Store("s1", SessionDetails{ID: "s1"})
	if _, ok := disabled.Get("s1"); ok {
		t.Fatalf("expected disabled cache to miss")
	}
}
