package cache

import (
	"errors"
	"sync"
)

// instance is one in-process backend cache shared by every handle Open
// returned for its name. Deleting the name detaches the instance; its
// resources are freed once the last handle is closed.
type instance struct {
	mu      sync.Mutex
	handles int
	deleted bool
	freed   bool
	free    func() error
	set     *instanceSet
}

func (i *instance) open() {
	i.mu.Lock()
	i.handles++
	i.mu.Unlock()
}

func (i *instance) release() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.handles > 0 {
		i.handles--
	}
	return i.freeLocked(false)
}

func (i *instance) markDeleted() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deleted = true
	return i.freeLocked(false)
}

func (i *instance) isFreed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.freed
}

func (i *instance) freeLocked(force bool) error {
	if i.freed {
		return nil
	}
	if !force && (!i.deleted || i.handles > 0) {
		return nil
	}
	i.freed = true
	if i.set != nil {
		i.set.remove(i)
	}
	return i.free()
}

// instanceSet tracks every unfreed instance of a storage, including
// deleted ones still held open, so Close can free them all.
type instanceSet struct {
	mu   sync.Mutex
	live map[*instance]struct{}
}

func (s *instanceSet) track(free func() error) *instance {
	inst := &instance{free: free, set: s}
	s.mu.Lock()
	if s.live == nil {
		s.live = make(map[*instance]struct{})
	}
	s.live[inst] = struct{}{}
	s.mu.Unlock()
	return inst
}

func (s *instanceSet) remove(inst *instance) {
	s.mu.Lock()
	delete(s.live, inst)
	s.mu.Unlock()
}

func (s *instanceSet) closeAll() error {
	s.mu.Lock()
	live := make([]*instance, 0, len(s.live))
	for inst := range s.live {
		live = append(live, inst)
	}
	s.mu.Unlock()

	var errs []error
	for _, inst := range live {
		inst.mu.Lock()
		err := inst.freeLocked(true)
		inst.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
