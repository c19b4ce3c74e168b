package cache

import (
	"context"
	"errors"
	"sort"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "fiado:cache"

var ErrNilRedisClient = errors.New("redis storage: nil client")

type RedisConfig struct {
	Client goredis.UniversalClient
	// Prefix namespaces every key written by the storage.
	Prefix string
	// CloseClient is set when the storage exclusively owns Client.
	CloseClient bool
}

// RedisStorage keeps every named store in a redis hash and tracks store
// names in a set, so several edge processes can share one cache.
type RedisStorage struct {
	rdb            goredis.UniversalClient
	prefix         string
	closeClient    bool
	codec          Codec
	maxObjectBytes int64
}

func NewRedisStorage(cfg RedisConfig, codec Codec, maxObjectBytes int64) (*RedisStorage, error) {
	if cfg.Client == nil {
		return nil, ErrNilRedisClient
	}
	if codec == nil {
		codec = Msgpack{}
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStorage{
		rdb:            cfg.Client,
		prefix:         prefix,
		closeClient:    cfg.CloseClient,
		codec:          codec,
		maxObjectBytes: maxObjectBytes,
	}, nil
}

func (s *RedisStorage) namesKey() string { return s.prefix + ":stores" }

func (s *RedisStorage) storeKey(name string) string { return s.prefix + ":store:" + name }

func (s *RedisStorage) Open(ctx context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("cache name is required")
	}
	if err := s.rdb.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{storage: s, name: name, key: s.storeKey(name)}, nil
}

func (s *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	return s.rdb.SIsMember(ctx, s.namesKey(), name).Result()
}

func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.storeKey(name))
		removed = pipe.SRem(ctx, s.namesKey(), name)
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the client only when the storage owns it. Repeated calls
// are no-ops.
func (s *RedisStorage) Close() error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

type RedisStore struct {
	storage *RedisStorage
	name    string
	key     string
}

func (r *RedisStore) Name() string { return r.name }

func (r *RedisStore) Close() error { return nil }

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.storage.rdb.HGet(ctx, r.key, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	entry, err := r.storage.codec.Unmarshal(raw)
	if err != nil {
		_ = r.storage.rdb.HDel(ctx, r.key, key).Err()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	if err := checkSize(r.storage.maxObjectBytes, entry); err != nil {
		return err
	}
	raw, err := r.storage.codec.Marshal(entry)
	if err != nil {
		return err
	}
	return r.storage.rdb.HSet(ctx, r.key, key, raw).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.storage.rdb.HDel(ctx, r.key, key).Err()
}

func (r *RedisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.storage.rdb.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
