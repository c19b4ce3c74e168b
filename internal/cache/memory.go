package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
)

const DefaultMaxObjectBytes int64 = 50 * 1024 * 1024

type MemoryStore struct {
	name           string
	mu             sync.RWMutex
	entries        map[string]Entry
	maxObjectBytes int64
}

func NewMemoryStore(name string, maxObjectBytes int64) *MemoryStore {
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	return &MemoryStore{
		name:           name,
		entries:        make(map[string]Entry),
		maxObjectBytes: maxObjectBytes,
	}
}

func (m *MemoryStore) Name() string {
	if m == nil {
		return ""
	}
	return m.name
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	if m == nil {
		return Entry{}, false, nil
	}
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	entry.Header = entry.Header.Clone()
	return entry, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	if m == nil {
		return errors.New("cache store not initialized")
	}
	if err := checkSize(m.maxObjectBytes, entry); err != nil {
		return err
	}
	entry.Header = entry.Header.Clone()
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	if m == nil {
		return nil, nil
	}
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op; a deleted store is dropped with its last reference.
func (m *MemoryStore) Close() error { return nil }

// MemoryStorage keeps named stores in process memory. Nothing survives a
// restart.
type MemoryStorage struct {
	mu             sync.Mutex
	stores         map[string]*MemoryStore
	maxObjectBytes int64
}

func NewMemoryStorage(maxObjectBytes int64) *MemoryStorage {
	return &MemoryStorage{stores: make(map[string]*MemoryStore), maxObjectBytes: maxObjectBytes}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("cache name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.stores[name]; ok {
		return store, nil
	}
	store := NewMemoryStore(name, s.maxObjectBytes)
	s.stores[name] = store
	return store, nil
}

func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	_, ok := s.stores[name]
	s.mu.Unlock()
	return ok, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	_, ok := s.stores[name]
	delete(s.stores, name)
	s.mu.Unlock()
	return ok, nil
}

func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
