package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/journey-search/internal/journey"
)

const (
	defaultTTL = time.Minute
	keyPrefix  = "journeys:"
	purgeBatch = 100
)

// Cache stores search results in Redis, keyed by query.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache with a one minute TTL.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: defaultTTL}
}

// NewCacheWithTTL constructs a Cache whose entries expire after ttl.
// A non-positive ttl falls back to the default.
func NewCacheWithTTL(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Key returns the Redis key for q: an md5 digest of date, origin and
// destination under the "journeys:" prefix.
func Key(q journey.Query) string {
	sum := md5.Sum([]byte(q.Date.String() + "-" + q.Origin + "-" + q.Destination))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get retrieves the cached result for q. A miss is reported as ok == false
// with a nil error; a cached empty result is a hit.
func (c *Cache) Get(ctx context.Context, q journey.Query) ([]journey.Journey, bool, error) {
	val, err := c.client.Get(ctx, Key(q)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get for %s %s-%s: %w", q.Date, q.Origin, q.Destination, err)
	}

	var journeys []journey.Journey
	if err := json.Unmarshal(val, &journeys); err != nil {
		return nil, false, fmt.Errorf("unmarshaling cached journeys for %s %s-%s: %w", q.Date, q.Origin, q.Destination, err)
	}

	return journeys, true, nil
}

// Set stores journeys for q with the configured TTL. A nil slice is stored
// as an empty result.
func (c *Cache) Set(ctx context.Context, q journey.Query, journeys []journey.Journey) error {
	if journeys == nil {
		journeys = []journey.Journey{}
	}

	b, err := json.Marshal(journeys)
	if err != nil {
		return fmt.Errorf("marshaling journeys for %s %s-%s: %w", q.Date, q.Origin, q.Destination, err)
	}

	if err := c.client.Set(ctx, Key(q), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for %s %s-%s: %w", q.Date, q.Origin, q.Destination, err)
	}

	return nil
}

// Purge removes every cached search result and reports how many entries
// were dropped. Keys outside the "journeys:" prefix are left alone.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	var (
		removed int
		batch   []string
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("cache purge: deleting %d keys: %w", len(batch), err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", purgeBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == purgeBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache purge: scanning %s*: %w", keyPrefix, err)
	}
	if err := flush(); err != nil {
		return removed, err
	}

	return removed, nil
}

// Ping reports whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Connect parses redisURL, creates a client, and verifies connectivity with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", opts.Addr, err)
	}

	return client, nil
}
