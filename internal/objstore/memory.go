package objstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and as a scratch backend.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	copied := Object{Data: append([]byte(nil), obj.Data...), ContentType: obj.ContentType}
	return copied, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, obj Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{Data: append([]byte(nil), obj.Data...), ContentType: obj.ContentType}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// List implements Store. Keys are returned in lexicographic order; the
// cursor is the last key of the previous page.
func (s *MemoryStore) List(_ context.Context, prefix, cursor string, limit int) (ListPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matching := make([]string, 0, len(s.objects))
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) && key > cursor {
			matching = append(matching, key)
		}
	}
	sort.Strings(matching)

	page := ListPage{}
	if limit > 0 && len(matching) > limit {
		page.Keys = matching[:limit]
		page.NextCursor = matching[limit-1]
		page.Truncated = true
	} else {
		page.Keys = matching
	}
	return page, nil
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
