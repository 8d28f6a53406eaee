package application

import (
	"sync"
	"time"

	"github.com/example/slot-reservations/internal/roster"
)

// sessionCache keeps recently normalised session details so that every view
// load does not hit the catalog. Entries expire after ttl and the cache holds
// at most maxEntries sessions.
type sessionCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]sessionCacheEntry
}

type sessionCacheEntry struct {
	details   SessionDetails
	expiresAt time.Time
}

func newSessionCache(ttl time.Duration, maxEntries int, now func() time.Time) *sessionCache {
	if ttl <= 0 {
		return nil
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &sessionCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]sessionCacheEntry),
	}
}

func (c *sessionCache) Get(key string) (SessionDetails, bool) {
	if c == nil {
		return SessionDetails{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return SessionDetails{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return SessionDetails{}, false
	}
	return cloneDetails(entry.details), true
}

func (c *sessionCache) Store(key string, details SessionDetails) {
	if c == nil {
		return
	}
	cloned := cloneDetails(details)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = sessionCacheEntry{details: cloned, expiresAt: expiry}
}

func (c *sessionCache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *sessionCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictOneLocked drops the entry closest to expiry.
func (c *sessionCache) evictOneLocked() {
	var (
		victim string
		oldest time.Time
	)
	for key, entry := range c.entries {
		if victim == "" || entry.expiresAt.Before(oldest) {
			victim, oldest = key, entry.expiresAt
		}
	}
	delete(c.entries, victim)
}

func cloneDetails(details SessionDetails) SessionDetails {
	clone := details
	if details.Teams != nil {
		clone.Teams = make([]roster.TeamLayout, len(details.Teams))
		copy(clone.Teams, details.Teams)
	}
	return clone
}
