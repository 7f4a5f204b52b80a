package session

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements the Store interface with an in-process map.
// It exists so the service can run without a Redis instance (single
// process deployments, tests); semantics mirror the Redis backend.
type MemoryStore struct {
	cache *gocache.Cache
	// mu serializes read-modify-write sequences (lists, counters,
	// compare-and-delete) that go-cache cannot do atomically.
	mu sync.Mutex
}

// NewMemoryStore creates a MemoryStore. Expired entries are swept every
// minute; per-entry TTLs are supplied on each write.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := s.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	_, found := s.cache.Get(key)
	return found, nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.cache.Add(key, value, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, found := s.cache.Get(key)
	if !found {
		return false, nil
	}
	b, ok := v.([]byte)
	if !ok || string(b) != string(value) {
		return false, nil
	}
	s.cache.Delete(key)
	return true, nil
}

func (s *MemoryStore) PushCapped(_ context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list [][]byte
	if v, found := s.cache.Get(key); found {
		if existing, ok := v.([][]byte); ok {
			list = existing
		}
	}
	list = append([][]byte{value}, list...)
	if int64(len(list)) > maxLen {
		list = list[:maxLen]
	}
	s.cache.Set(key, list, ttl)
	return nil
}

func (s *MemoryStore) Range(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, found := s.cache.Get(key)
	if !found {
		return nil, nil
	}
	list, ok := v.([][]byte)
	if !ok {
		return nil, nil
	}
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([][]byte, 0, stop-start+1)
	for _, item := range list[start : stop+1] {
		out = append(out, item)
	}
	return out, nil
}

func (s *MemoryStore) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if v, found := s.cache.Get(key); found {
		if existing, ok := v.(int64); ok {
			n = existing
		}
	}
	n++
	s.cache.Set(key, n, expiry)
	return n, nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
