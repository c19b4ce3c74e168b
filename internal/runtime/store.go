package runtime

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store publishes the active snapshot. Fetches read it lock-free. A
// replaced snapshot is retired and handed to the reap callback once the
// last fetch holding it releases it.
type Store struct {
	current atomic.Pointer[Snapshot]
	onReap  func(*Snapshot)
	mu      sync.Mutex
	retired []*Snapshot
}

// NewStore returns a store publishing initial. onReap may be nil.
func NewStore(initial *Snapshot, onReap func(*Snapshot)) *Store {
	store := &Store{onReap: onReap}
	if initial != nil {
		store.current.Store(initial)
	}
	return store
}

func (s *Store) Get() *Snapshot {
	if s == nil {
		return nil
	}
	return s.current.Load()
}

// Acquire returns the current snapshot with a reference held, or nil when
// nothing is published. The reference is only kept if the snapshot was
// still current after taking it, so a reaped snapshot is never handed out.
func (s *Store) Acquire() *Snapshot {
	for {
		snapshot := s.Get()
		if snapshot == nil {
			return nil
		}
		snapshot.IncRef()
		if s.current.Load() == snapshot {
			return snapshot
		}
		s.Release(snapshot)
	}
}

func (s *Store) Release(snapshot *Snapshot) {
	if snapshot == nil {
		return
	}
	if snapshot.DecRef() == 0 && snapshot.Retired() {
		s.Reap()
	}
}

// Swap publishes next and returns the snapshot it replaced, if any.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	previous := s.current.Swap(next)
	if previous != nil {
		previous.MarkRetired(time.Now())
		s.retired = append(s.retired, previous)
	}
	s.mu.Unlock()

	s.Reap()
	return previous
}

func (s *Store) RetiredCount() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	count := len(s.retired)
	s.mu.Unlock()
	return count
}

// Reap drops every retired snapshot no fetch holds anymore and passes it
// to the reap callback. Each snapshot is reaped once.
func (s *Store) Reap() {
	if s == nil {
		return
	}
	s.mu.Lock()
	var reaped []*Snapshot
	retained := s.retired[:0]
	for _, snapshot := range s.retired {
		if snapshot == nil {
			continue
		}
		if snapshot.RefCount() != 0 {
			retained = append(retained, snapshot)
			continue
		}
		reaped = append(reaped, snapshot)
	}
	clear(s.retired[len(retained):])
	s.retired = retained
	s.mu.Unlock()

	if s.onReap == nil {
		return
	}
	for _, snapshot := range reaped {
		s.onReap(snapshot)
	}
}
