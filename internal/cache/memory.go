package cache

import (
	"sync"
	"time"

	"github.com/sourcehub/sourcehub/internal/domain"
)

type entry struct {
	role      domain.Role
	expiresAt time.Time
}

// MemoryStore is an in-process Store with lazy expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(key string) (domain.Role, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		// re-check under the write lock, a newer Set may have landed
		if cur, ok := s.entries[key]; ok && s.now().After(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return "", false
	}
	return e.role, true
}

func (s *MemoryStore) Set(key string, role domain.Role, ttl time.Duration) {
	s.mu.Lock()
	s.entries[key] = entry{role: role, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}
