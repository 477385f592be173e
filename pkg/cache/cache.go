package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Cache layers a short-lived in-process map over redis. Keys are the
// deterministic query strings produced by pkg/query, so identical searches
// across sessions share entries.
type Cache struct {
	client   *redis.Client
	mu       sync.Mutex
	local    map[string]localEntry
	localTTL time.Duration
}

type localEntry struct {
	expires time.Time
	data    []byte
}

func New(addr, password string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{
		client:   rdb,
		local:    make(map[string]localEntry),
		localTTL: time.Minute,
	}
}

func (c *Cache) Get(ctx context.Context, key string, out any) error {
	c.mu.Lock()
	if entry, ok := c.local[key]; ok {
		if time.Now().Before(entry.expires) {
			c.mu.Unlock()
			return sonic.Unmarshal(entry.data, out)
		}
		delete(c.local, key)
	}
	c.mu.Unlock()

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.local[key] = localEntry{expires: time.Now().Add(c.localTTL), data: data}
	c.mu.Unlock()
	return sonic.Unmarshal(data, out)
}

func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	localTTL := c.localTTL
	if expiration > 0 && expiration < localTTL {
		localTTL = expiration
	}
	c.mu.Lock()
	c.local[key] = localEntry{expires: time.Now().Add(localTTL), data: data}
	c.mu.Unlock()
	return c.client.Set(ctx, key, data, expiration).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
