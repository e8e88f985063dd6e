package provider

import (
	"context"
	"sync"
	"time"
)

const policyTTL = 60 * time.Second

type cacheEntry struct {
	policy    Policy
	expiresAt time.Time
}

// PolicyCache fronts a SettingsStore with a short TTL cache so hot call paths
// avoid a store round-trip per call. Concurrent misses for the same tenant may
// race to fetch; the last write wins.
type PolicyCache struct {
	store SettingsStore
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewPolicyCache(store SettingsStore) *PolicyCache {
	return &PolicyCache{
		store:   store,
		ttl:     policyTTL,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *PolicyCache) Resolve(ctx context.Context, tenantID string) (Policy, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.policy, nil
	}

	policy, err := c.store.FetchPolicy(ctx, tenantID)
	if err != nil {
		return Policy{}, err
	}

	c.mu.Lock()
	c.entries[tenantID] = cacheEntry{policy: policy, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return policy, nil
}

// Invalidate drops one tenant's entry, or every entry when tenantID is empty.
func (c *PolicyCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tenantID == "" {
		c.entries = make(map[string]cacheEntry)
		return
	}
	delete(c.entries, tenantID)
}
