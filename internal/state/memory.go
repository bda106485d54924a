package state

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/api"
)

type (
	memoryEntry struct {
		expiresAt time.Time
		value     json.RawMessage
	}

	// MemoryStore is a goroutine-safe in-process State backed by maps.
	// Expired entries are invisible to Get and reclaimed by Cleanup
	MemoryStore struct {
		scopes map[string]map[string]memoryEntry
		clock  func() time.Time
		mu     sync.RWMutex
	}
)

var _ api.State = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scopes: map[string]map[string]memoryEntry{},
		clock:  time.Now,
	}
}

func (s *MemoryStore) Get(
	_ context.Context, scope, key string,
) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.scopes[scope][key]
	if !ok || entry.expired(s.clock()) {
		return nil, nil
	}
	// callers own the returned bytes; never hand out the stored slice
	return bytes.Clone(entry.value), nil
}

func (s *MemoryStore) Set(
	ctx context.Context, scope, key string, value any,
) error {
	return s.SetTTL(ctx, scope, key, value, 0)
}

func (s *MemoryStore) SetTTL(
	_ context.Context, scope, key string, value any, ttl time.Duration,
) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	entry := memoryEntry{value: data}
	if ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.scopes[scope]
	if !ok {
		keys = map[string]memoryEntry{}
		s.scopes[scope] = keys
	}
	keys[key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.scopes[scope], key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.scopes, scope)
	return nil
}

// Cleanup evicts entries whose TTL has elapsed. Safe to call concurrently
// with any other operation
func (s *MemoryStore) Cleanup(_ context.Context) error {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for scope, keys := range s.scopes {
		for key, entry := range keys {
			if entry.expired(now) {
				delete(keys, key)
			}
		}
		if len(keys) == 0 {
			delete(s.scopes, scope)
		}
	}
	return nil
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
