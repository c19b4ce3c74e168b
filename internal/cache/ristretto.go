package cache

import (
	"context"
	"errors"
	"sort"
	"sync"

	rc "github.com/dgraph-io/ristretto"
)

type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func (c RistrettoConfig) withDefaults() RistrettoConfig {
	if c.NumCounters <= 0 {
		c.NumCounters = 1e5
	}
	if c.MaxCost <= 0 {
		c.MaxCost = 256 << 20
	}
	if c.BufferItems <= 0 {
		c.BufferItems = 64
	}
	return c
}

// RistrettoStorage backs each named store with its own ristretto cache.
// Ristretto cannot enumerate its keys, so every store keeps a side index.
type RistrettoStorage struct {
	mu             sync.Mutex
	cfg            RistrettoConfig
	codec          Codec
	maxObjectBytes int64
	stores         map[string]*RistrettoStore
	instances      instanceSet
}

func NewRistrettoStorage(cfg RistrettoConfig, codec Codec, maxObjectBytes int64) *RistrettoStorage {
	if codec == nil {
		codec = Msgpack{}
	}
	return &RistrettoStorage{
		cfg:            cfg.withDefaults(),
		codec:          codec,
		maxObjectBytes: maxObjectBytes,
		stores:         make(map[string]*RistrettoStore),
	}
}

func (s *RistrettoStorage) Open(_ context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("cache name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.stores[name]; ok {
		store.inst.open()
		return store, nil
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: s.cfg.NumCounters,
		MaxCost:     s.cfg.MaxCost,
		BufferItems: s.cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	store := &RistrettoStore{
		name:           name,
		c:              c,
		codec:          s.codec,
		maxObjectBytes: s.maxObjectBytes,
		index:          make(map[string]struct{}),
	}
	store.inst = s.instances.track(func() error {
		c.Close()
		return nil
	})
	store.inst.open()
	s.stores[name] = store
	return store, nil
}

func (s *RistrettoStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	_, ok := s.stores[name]
	s.mu.Unlock()
	return ok, nil
}

func (s *RistrettoStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	store, ok := s.stores[name]
	delete(s.stores, name)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, store.inst.markDeleted()
}

func (s *RistrettoStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names, nil
}

func (s *RistrettoStorage) Close() error {
	s.mu.Lock()
	clear(s.stores)
	s.mu.Unlock()
	return s.instances.closeAll()
}

type RistrettoStore struct {
	name           string
	c              *rc.Cache
	codec          Codec
	maxObjectBytes int64

	inst           *instance

	mu    sync.Mutex
	index map[string]struct{}
}

func (r *RistrettoStore) Name() string { return r.name }

func (r *RistrettoStore) Close() error { return r.inst.release() }

func (r *RistrettoStore) Get(_ context.Context, key string) (Entry, bool, error) {
	value, ok := r.c.Get(key)
	if !ok {
		r.forget(key)
		return Entry{}, false, nil
	}
	raw, _ := value.([]byte)
	if raw == nil {
		r.c.Del(key)
		r.forget(key)
		return Entry{}, false, nil
	}
	entry, err := r.codec.Unmarshal(raw)
	if err != nil {
		r.c.Del(key)
		r.forget(key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (r *RistrettoStore) Set(_ context.Context, key string, entry Entry) error {
	if err := checkSize(r.maxObjectBytes, entry); err != nil {
		return err
	}
	raw, err := r.codec.Marshal(entry)
	if err != nil {
		return err
	}
	if !r.c.Set(key, raw, int64(len(raw))) {
		return ErrRejected
	}
	// make the write visible to the next Get
	r.c.Wait()
	r.mu.Lock()
	r.index[key] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *RistrettoStore) Delete(_ context.Context, key string) error {
	r.c.Del(key)
	r.forget(key)
	return nil
}

func (r *RistrettoStore) Keys(_ context.Context) ([]string, error) {
	r.mu.Lock()
	candidates := make([]string, 0, len(r.index))
	for key := range r.index {
		candidates = append(candidates, key)
	}
	r.mu.Unlock()

	keys := candidates[:0]
	for _, key := range candidates {
		if _, ok := r.c.Get(key); ok {
			keys = append(keys, key)
		} else {
			r.forget(key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RistrettoStore) forget(key string) {
	r.mu.Lock()
	delete(r.index, key)
	r.mu.Unlock()
}
