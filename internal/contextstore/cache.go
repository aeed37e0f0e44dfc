package contextstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trialscout/trialchat/internal/conversation"
)

const cacheKeyPrefix = "trialchat:context:"

// Cache is the read-through context cache. A miss returns (nil, nil); only
// transport failures surface as errors.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps a Redis client with the given entry TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached context for a session, or nil on a miss.
func (c *Cache) Get(ctx context.Context, sessionID string) (*conversation.Context, error) {
	blob, err := c.client.Get(ctx, cacheKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("contextstore: cache get: %w", err)
	}

	cc, err := conversation.UnmarshalContext(blob)
	if err != nil {
		// A corrupt entry is treated as a miss; the store remains authoritative.
		return nil, nil
	}
	return cc, nil
}

// Set writes the context under the session key with the configured TTL.
func (c *Cache) Set(ctx context.Context, cc *conversation.Context) error {
	blob, err := cc.Marshal()
	if err != nil {
		return fmt.Errorf("contextstore: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+cc.SessionID, blob, c.ttl).Err(); err != nil {
		return fmt.Errorf("contextstore: cache set: %w", err)
	}
	return nil
}

// Delete drops the cached entry for a session.
func (c *Cache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, cacheKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("contextstore: cache delete: %w", err)
	}
	return nil
}
