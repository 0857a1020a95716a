package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "norcrawl:seen:"

// RedisSeen is a Redis-backed seen set for the frontier. Keys carry an
// expiry so long-gone URLs become crawlable again on a later run.
type RedisSeen struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSeen connects to the Redis instance at addr. A zero ttl keeps
// entries forever.
func NewRedisSeen(addr string, ttl time.Duration) *RedisSeen {
	return &RedisSeen{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Add marks key as seen and reports whether it was newly added. SETNX makes
// the check-and-mark atomic across processes.
func (s *RedisSeen) Add(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, seenKey(key), "1", s.ttl).Result()
}

// Remove forgets key so it can be admitted again.
func (s *RedisSeen) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, seenKey(key)).Err()
}

// Close releases the underlying Redis connection.
func (s *RedisSeen) Close() error {
	return s.client.Close()
}

// seenKey hashes the URL so arbitrarily long URLs map to fixed-size keys.
func seenKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return seenKeyPrefix + hex.EncodeToString(sum[:])
}
