// Package cache holds the named, versioned response stores the offline
// worker primes on install and falls back to when the origin is down.
package cache

import (
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	BackendMemory    = "memory"
	BackendBigcache  = "bigcache"
	BackendRistretto = "ristretto"
	BackendRedis     = "redis"
	BackendSQLite    = "sqlite"
)

type Options struct {
	Backend        string
	Codec          string
	MaxObjectBytes int64

	Bigcache  BigcacheConfig
	Ristretto RistrettoConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	SQLitePath string
}

// NewStorage builds the storage selected by opts.Backend. The empty
// backend selects memory.
func NewStorage(opts Options) (Storage, error) {
	maxObjectBytes := opts.MaxObjectBytes
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" || backend == BackendMemory {
		return NewMemoryStorage(maxObjectBytes), nil
	}

	codec, err := NewCodec(opts.Codec)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendBigcache:
		return NewBigcacheStorage(opts.Bigcache, codec, maxObjectBytes), nil
	case BackendRistretto:
		return NewRistrettoStorage(opts.Ristretto, codec, maxObjectBytes), nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend requires an address")
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:         opts.RedisAddr,
			Password:     opts.RedisPassword,
			DB:           opts.RedisDB,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		return NewRedisStorage(RedisConfig{Client: client, Prefix: opts.RedisPrefix, CloseClient: true}, codec, maxObjectBytes)
	case BackendSQLite:
		db, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStorage(db, codec, maxObjectBytes)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
