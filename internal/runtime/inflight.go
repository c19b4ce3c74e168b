package runtime

import (
	"context"
	"sync"
	"sync/atomic"
)

// InflightTracker counts edge requests that are still being answered.
// Shutdown drains against it.
type InflightTracker struct {
	count atomic.Int64

	mu   sync.Mutex
	idle chan struct{}
}

func NewInflightTracker() *InflightTracker {
	idle := make(chan struct{})
	close(idle)
	return &InflightTracker{idle: idle}
}

// Begin records one request and returns the func that ends it. Calling the
// returned func more than once has no further effect.
func (t *InflightTracker) Begin() func() {
	if t == nil {
		return func() {}
	}
	t.mu.Lock()
	if t.count.Add(1) == 1 {
		t.idle = make(chan struct{})
	}
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(t.end)
	}
}

func (t *InflightTracker) end() {
	t.mu.Lock()
	if t.count.Add(-1) == 0 {
		close(t.idle)
	}
	t.mu.Unlock()
}

func (t *InflightTracker) Count() int64 {
	if t == nil {
		return 0
	}
	return t.count.Load()
}

// Wait blocks until no request is in flight or ctx is done.
func (t *InflightTracker) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
