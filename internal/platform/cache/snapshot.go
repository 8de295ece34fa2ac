package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshots is a small JSON snapshot cache for read-only listings. Entries
// expire with the TTL; callers treat a miss as a normal read-through.
type Snapshots struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshots constructs a snapshot cache.
func NewSnapshots(client *redis.Client, ttl time.Duration) *Snapshots {
	return &Snapshots{client: client, ttl: ttl}
}

// Get loads a cached snapshot into target, reporting whether it was present.
// Cache failures are reported but never fatal to the caller's read path.
func (s *Snapshots) Get(ctx context.Context, key string, target any) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("platform/cache: get: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("platform/cache: unmarshal: %w", err)
	}
	return true, nil
}

// Set stores a snapshot with the configured TTL.
func (s *Snapshots) Set(ctx context.Context, key string, value any) error {
	if s == nil || s.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("platform/cache: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("platform/cache: set: %w", err)
	}
	return nil
}

// Invalidate removes cached snapshots.
func (s *Snapshots) Invalidate(ctx context.Context, keys ...string) error {
	if s == nil || s.client == nil || len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("platform/cache: del: %w", err)
	}
	return nil
}

func (s *Snapshots) key(k string) string {
	return "snapshot:" + k
}
