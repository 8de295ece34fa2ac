package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrWizardNotFound indicates an unknown or expired wizard id.
var ErrWizardNotFound = errors.New("wizard: not found")

// Store persists wizard state in Redis between requests. State is written
// wholesale on every mutation; abandoned wizards expire with the TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Save serializes and writes the state, refreshing its TTL.
func (s *Store) Save(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("wizard store: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(st.Kind, st.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("wizard store: set: %w", err)
	}
	return nil
}

// Load reads a wizard state by kind and id.
func (s *Store) Load(ctx context.Context, kind OwnerKind, id string) (*State, error) {
	data, err := s.client.Get(ctx, s.key(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrWizardNotFound
		}
		return nil, fmt.Errorf("wizard store: get: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("wizard store: unmarshal: %w", err)
	}
	return &st, nil
}

// Delete removes a wizard, typically after completion or cancellation.
func (s *Store) Delete(ctx context.Context, kind OwnerKind, id string) error {
	if err := s.client.Del(ctx, s.key(kind, id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("wizard store: del: %w", err)
	}
	return nil
}

func (s *Store) key(kind OwnerKind, id string) string {
	return "wizard:" + string(kind) + ":" + id
}
