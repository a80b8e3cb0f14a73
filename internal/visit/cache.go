package visit

import (
	"context"
	"encoding/json"
	"time"

	platformredis "gatehouse/internal/platform/redis"
	id "gatehouse/pkg/domain"
)

// ActiveCache is a short-TTL Redis cache for the active-visits read query,
// which the reception dashboard polls aggressively. All methods are nil-safe
// and best-effort: a cache error degrades to a store read, never a failure.
type ActiveCache struct {
	client *platformredis.Client
	ttl    time.Duration
}

// NewActiveCache wraps the Redis client; a nil client yields a cache whose
// methods are all no-ops.
func NewActiveCache(client *platformredis.Client, ttl time.Duration) *ActiveCache {
	if client == nil {
		return nil
	}
	return &ActiveCache{client: client, ttl: ttl}
}

func activeKey(location id.Location) string {
	if location == "" {
		return "gatehouse:active:all"
	}
	return "gatehouse:active:" + string(location)
}

// Get returns the cached active list for a location, or (nil, false) on
// miss or cache error.
func (c *ActiveCache) Get(ctx context.Context, location id.Location) ([]*Visit, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, activeKey(location)).Bytes()
	if err != nil {
		return nil, false
	}
	var visits []*Visit
	if err := json.Unmarshal(raw, &visits); err != nil {
		return nil, false
	}
	return visits, true
}

// Set stores the active list for a location.
func (c *ActiveCache) Set(ctx context.Context, location id.Location, visits []*Visit) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(visits)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, activeKey(location), raw, c.ttl).Err()
}

// Invalidate drops the cached lists affected by a transition at the given
// location. The all-sites key always goes with it.
func (c *ActiveCache) Invalidate(ctx context.Context, location id.Location) {
	if c == nil {
		return
	}
	keys := []string{activeKey("")}
	if location != "" {
		keys = append(keys, activeKey(location))
	}
	_ = c.client.Del(ctx, keys...).Err()
}
