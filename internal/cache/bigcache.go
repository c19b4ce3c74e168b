package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"
)

const defaultBigcacheLifeWindow = 30 * 24 * time.Hour

type BigcacheConfig struct {
	Shards             int
	LifeWindow         time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int
}

// BigcacheStorage backs each named store with its own BigCache instance.
// Entries are only lost when the hard size limit evicts them or the life
// window elapses.
type BigcacheStorage struct {
	mu             sync.Mutex
	cfg            BigcacheConfig
	codec          Codec
	maxObjectBytes int64
	stores         map[string]*BigcacheStore
	instances      instanceSet
}

func NewBigcacheStorage(cfg BigcacheConfig, codec Codec, maxObjectBytes int64) *BigcacheStorage {
	if codec == nil {
		codec = Msgpack{}
	}
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = defaultBigcacheLifeWindow
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if cfg.MaxEntriesInWindow <= 0 {
		cfg.MaxEntriesInWindow = 1024
	}
	if cfg.MaxEntrySize <= 0 {
		cfg.MaxEntrySize = 4096
	}
	return &BigcacheStorage{
		cfg:            cfg,
		codec:          codec,
		maxObjectBytes: maxObjectBytes,
		stores:         make(map[string]*BigcacheStore),
	}
}

func (s *BigcacheStorage) Open(_ context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("cache name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.stores[name]; ok {
		store.inst.open()
		return store, nil
	}
	conf := bc.DefaultConfig(s.cfg.LifeWindow)
	conf.CleanWindow = 0
	conf.Verbose = false
	conf.Shards = s.cfg.Shards
	conf.MaxEntriesInWindow = s.cfg.MaxEntriesInWindow
	conf.MaxEntrySize = s.cfg.MaxEntrySize
	if s.cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = s.cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	store := &BigcacheStore{name: name, c: c, codec: s.codec, maxObjectBytes: s.maxObjectBytes}
	store.inst = s.instances.track(c.Close)
	store.inst.open()
	s.stores[name] = store
	return store, nil
}

func (s *BigcacheStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	_, ok := s.stores[name]
	s.mu.Unlock()
	return ok, nil
}

func (s *BigcacheStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	store, ok := s.stores[name]
	delete(s.stores, name)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, store.inst.markDeleted()
}

func (s *BigcacheStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names, nil
}

func (s *BigcacheStorage) Close() error {
	s.mu.Lock()
	clear(s.stores)
	s.mu.Unlock()
	return s.instances.closeAll()
}

type BigcacheStore struct {
	name           string
	c              *bc.BigCache
	codec          Codec
	maxObjectBytes int64
	inst           *instance
}

func (b *BigcacheStore) Name() string { return b.name }

func (b *BigcacheStore) Close() error { return b.inst.release() }

func (b *BigcacheStore) Get(_ context.Context, key string) (Entry, bool, error) {
	raw, err := b.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	entry, err := b.codec.Unmarshal(raw)
	if err != nil {
		// corrupt payload; drop it so the next lookup is a clean miss
		_ = b.c.Delete(key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (b *BigcacheStore) Set(_ context.Context, key string, entry Entry) error {
	if err := checkSize(b.maxObjectBytes, entry); err != nil {
		return err
	}
	raw, err := b.codec.Marshal(entry)
	if err != nil {
		return err
	}
	return b.c.Set(key, raw)
}

func (b *BigcacheStore) Delete(_ context.Context, key string) error {
	err := b.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (b *BigcacheStore) Keys(_ context.Context) ([]string, error) {
	var keys []string
	it := b.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		keys = append(keys, info.Key())
	}
	sort.Strings(keys)
	return keys, nil
}
