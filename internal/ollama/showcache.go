package ollama

import (
	"context"
	"sync"
	"time"
)

// ShowCache keeps /api/show results for the Model Details view.
//
// Entries are keyed by connection target and model so a retarget never
// serves another daemon's metadata. Nothing outlives the process.
type ShowCache struct {
	client *Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[showKey]cacheEntry
}

type showKey struct {
	base  string
	model string
}

type cacheEntry struct {
	value   ShowResponse
	expires time.Time
}

func NewShowCache(client *Client, ttl time.Duration) *ShowCache {
	return &ShowCache{
		client:  client,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[showKey]cacheEntry),
	}
}

// Get returns the cached /api/show result or fetches a fresh one.
func (c *ShowCache) Get(ctx context.Context, model string) (ShowResponse, error) {
	if c.ttl <= 0 {
		return c.client.Show(ctx, model)
	}

	key := showKey{base: c.client.BaseURL(), model: model}
	now := c.now()
	c.mu.Lock()
	ent, ok := c.entries[key]
	if ok && now.Before(ent.expires) {
		v := ent.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	// Fetch without holding the lock.
	v, err := c.client.Show(ctx, model)
	if err != nil {
		return ShowResponse{}, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: v, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops every cached entry for model, e.g. after it was deleted or re-pulled.
func (c *ShowCache) Invalidate(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.model == model {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of cached entries.
func (c *ShowCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops everything, e.g. when the connection target changes.
func (c *ShowCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[showKey]cacheEntry)
}
