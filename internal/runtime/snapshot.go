package runtime

import (
	"sync/atomic"
	"time"

	"fiado_cache/internal/cache"
)

// Snapshot is one activated worker generation: the cache store handle it
// owns and the routing lists it was installed with. Snapshots are
// immutable once published; the store handle is closed when the snapshot
// is reaped.
type Snapshot struct {
	CacheName       string
	Store           cache.Store
	StaticAssets    []string
	BypassFragments []string
	ActivatedAt     time.Time

	refCount  atomic.Int64
	retiredAt atomic.Int64
}

func (s *Snapshot) IncRef() {
	if s == nil {
		return
	}
	s.refCount.Add(1)
}

// DecRef drops one reference and returns the remaining count.
func (s *Snapshot) DecRef() int64 {
	if s == nil {
		return 0
	}
	return s.refCount.Add(-1)
}

func (s *Snapshot) RefCount() int64 {
	if s == nil {
		return 0
	}
	return s.refCount.Load()
}

func (s *Snapshot) MarkRetired(now time.Time) {
	if s == nil {
		return
	}
	s.retiredAt.Store(now.UnixNano())
}

func (s *Snapshot) Retired() bool {
	if s == nil {
		return false
	}
	return s.retiredAt.Load() > 0
}
