// Package cache is a two-tier byte cache over an optional Redis instance
// shared by all server processes. When Redis is configured it is read first;
// the in-process expiring LRU serves alone without Redis and as the last
// known copy while Redis is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"auction-engine/utils"
)

const (
	DefaultSize = 4096
	DefaultTTL  = 10 * time.Minute
)

// AuctionKey is the key holding the cached bid history of an auction.
func AuctionKey(auctionID string) string {
	return "auction:" + auctionID
}

// casRetries bounds optimistic retries of a versioned Redis write.
const casRetries = 3

type Cache struct {
	// mu serialises versioned compare-and-set on the local tier
	mu     sync.Mutex
	local  *expirable.LRU[string, []byte]
	remote *redis.Client
	ttl    time.Duration
}

// New creates a cache. remote may be nil for a process-local cache.
func New(remote *redis.Client, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		local:  expirable.NewLRU[string, []byte](size, nil, ttl),
		remote: remote,
		ttl:    ttl,
	}
}

// Get returns the value from Redis when configured, otherwise from the local
// tier. A Redis failure falls back to the local copy.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.remote == nil {
		return c.local.Get(key)
	}
	v, err := c.remote.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c.local.Add(key, v)
		return v, true
	case errors.Is(err, redis.Nil):
		c.local.Remove(key)
		return nil, false
	default:
		utils.Warn("cache: remote get failed, using local copy", map[string]any{"key": key, "error": err.Error()})
		return c.local.Get(key)
	}
}

// Set writes both tiers. A remote failure is logged; the local tier still serves.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	c.local.Add(key, value)
	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, value, c.ttl).Err(); err != nil {
		utils.Warn("cache: remote set failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func (c *Cache) Delete(ctx context.Context, key string) {
	c.local.Remove(key)
	if c.remote == nil {
		return
	}
	if err := c.remote.Del(ctx, key).Err(); err != nil {
		utils.Warn("cache: remote delete failed", map[string]any{"key": key, "error": err.Error()})
	}
}

// versioned is the stored form of values written by SetVersioned.
type versioned struct {
	Version int64           `json:"version"`
	Value   json.RawMessage `json:"value"`
}

func decodeVersion(raw []byte) (int64, bool) {
	var e versioned
	if err := json.Unmarshal(raw, &e); err != nil {
		return 0, false
	}
	return e.Version, true
}

// GetVersioned decodes a value stored by SetVersioned into v and returns its
// version. A corrupt entry counts as a miss.
func (c *Cache) GetVersioned(ctx context.Context, key string, v any) (int64, bool) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return 0, false
	}
	var e versioned
	err := json.Unmarshal(raw, &e)
	if err == nil {
		err = json.Unmarshal(e.Value, v)
	}
	if err != nil {
		utils.Warn("cache: dropping undecodable entry", map[string]any{"key": key, "error": err.Error()})
		c.Delete(ctx, key)
		return 0, false
	}
	return e.Version, true
}

// SetVersioned stores v under version unless the key already holds a higher
// version, and reports whether it wrote. Equal versions overwrite.
func (c *Cache) SetVersioned(ctx context.Context, key string, version int64, v any) (bool, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(versioned{Version: version, Value: value})
	if err != nil {
		return false, err
	}

	if c.remote != nil {
		wrote, err := c.setRemoteIfNewer(ctx, key, version, raw)
		if err == nil {
			if wrote {
				c.local.Add(key, raw)
			} else {
				c.local.Remove(key)
			}
			return wrote, nil
		}
		utils.Warn("cache: remote versioned set failed", map[string]any{"key": key, "error": err.Error()})
	}
	return c.setLocalIfNewer(key, version, raw), nil
}

func (c *Cache) setLocalIfNewer(key string, version int64, raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.local.Get(key); ok {
		if have, ok := decodeVersion(old); ok && have > version {
			return false
		}
	}
	c.local.Add(key, raw)
	return true
}

// setRemoteIfNewer runs the compare-and-set under WATCH so a concurrent
// writer aborts the transaction and the comparison is redone.
func (c *Cache) setRemoteIfNewer(ctx context.Context, key string, version int64, raw []byte) (bool, error) {
	for i := 0; i < casRetries; i++ {
		wrote := false
		err := c.remote.Watch(ctx, func(tx *redis.Tx) error {
			old, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if have, ok := decodeVersion(old); ok && have > version {
					return nil
				}
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, raw, c.ttl)
				return nil
			})
			wrote = err == nil
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return wrote, err
	}
	return false, fmt.Errorf("cache: %s kept changing during versioned set", key)
}
