package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrOfflineMiss wraps the network error of a fetch that failed with
	// no cached copy to fall back on.
	ErrOfflineMiss       = errors.New("offline and not cached")
	ErrNotActive         = errors.New("no active cache generation")
	ErrNothingToActivate = errors.New("no installed generation to activate")
	ErrUnknownEvent      = errors.New("unknown worker event")
)

// ActivationError reports an activation that could not enumerate the
// cache storage. The generation stays installed and the previous one
// keeps serving.
type ActivationError struct {
	CacheName string
	Err       error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activate %q: %v", e.CacheName, e.Err)
}

func (e *ActivationError) Unwrap() error {
	return e.Err
}
