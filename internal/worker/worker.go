// Package worker implements the offline cache worker: a lifecycle state
// machine over versioned cache stores plus the network-first fetch policy
// that answers from the current store when the origin is unreachable.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fiado_cache/internal/cache"
	"fiado_cache/internal/obs"
	"fiado_cache/internal/runtime"
)

// Fetcher performs a request against the network.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

type Options struct {
	Storage   cache.Storage
	Network   Fetcher
	Logger    obs.Logger
	Metrics   *obs.Metrics
	Observers []PhaseObserver
	Now       func() time.Time
	// MaxAssetBytes caps the body read while priming a static asset.
	// Defaults to cache.DefaultMaxObjectBytes.
	MaxAssetBytes int64
}

type generation struct {
	cfg   Config
	store cache.Store
	phase Phase
}

type Worker struct {
	storage   cache.Storage
	network   Fetcher
	logger    obs.Logger
	metrics   *obs.Metrics
	observers []PhaseObserver
	now       func() time.Time
	maxAsset  int64

	active *runtime.Store

	lifecycle sync.Mutex
	mu        sync.Mutex
	pending   *generation
	current   *generation
}

func New(opts Options) (*Worker, error) {
	if opts.Storage == nil {
		return nil, errors.New("worker requires cache storage")
	}
	if opts.Network == nil {
		return nil, errors.New("worker requires a network fetcher")
	}
	logger := opts.Logger
	if logger == nil {
		logger = obs.NopLogger{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxAsset := opts.MaxAssetBytes
	if maxAsset <= 0 {
		maxAsset = cache.DefaultMaxObjectBytes
	}
	w := &Worker{
		storage:   opts.Storage,
		network:   opts.Network,
		logger:    logger,
		metrics:   opts.Metrics,
		observers: append([]PhaseObserver(nil), opts.Observers...),
		now:       now,
		maxAsset:  maxAsset,
	}
	w.active = runtime.NewStore(nil, w.releaseSnapshot)
	return w, nil
}

// releaseSnapshot closes the store handle of a generation once no fetch
// reads from it anymore.
func (w *Worker) releaseSnapshot(snapshot *runtime.Snapshot) {
	w.closeStore(snapshot.CacheName, snapshot.Store)
}

func (w *Worker) closeStore(name string, store cache.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		w.logger.Warn("cache store handle not closed", obs.Fields{"cache_name": name, "error": err.Error()})
	}
}

// Dispatch routes ev to its handler. The concrete Result type matches the
// event: InstallResult, ActivateResult or FetchResult.
func (w *Worker) Dispatch(ctx context.Context, ev Event) (Result, error) {
	switch ev := ev.(type) {
	case InstallEvent:
		return w.Install(ctx, ev.Config)
	case ActivateEvent:
		return w.Activate(ctx)
	case FetchEvent:
		return w.Fetch(ctx, ev.Request)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

func (w *Worker) Install(ctx context.Context, cfg Config) (InstallResult, error) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	return w.install(ctx, cfg)
}

func (w *Worker) Activate(ctx context.Context) (ActivateResult, error) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	return w.activate(ctx)
}

// Update installs cfg and, skipping the wait for older generations,
// activates it right away.
func (w *Worker) Update(ctx context.Context, cfg Config) (InstallResult, ActivateResult, error) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	installed, err := w.install(ctx, cfg)
	if err != nil {
		return installed, ActivateResult{}, err
	}
	activated, err := w.activate(ctx)
	return installed, activated, err
}

// Status describes the active generation and any generation waiting to
// be activated.
type Status struct {
	CacheName    string
	Phase        Phase
	ActivatedAt  time.Time
	Pending      string
	PendingPhase Phase
}

func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := Status{Phase: PhaseParsed, PendingPhase: PhaseParsed}
	if w.current != nil {
		status.CacheName = w.current.cfg.CacheName
		status.Phase = w.current.phase
	}
	if snapshot := w.active.Get(); snapshot != nil {
		status.ActivatedAt = snapshot.ActivatedAt
	}
	if w.pending != nil {
		status.Pending = w.pending.cfg.CacheName
		status.PendingPhase = w.pending.phase
	}
	return status
}

// Active reports whether a generation currently controls fetches.
func (w *Worker) Active() bool {
	return w.active.Get() != nil
}

func (w *Worker) CurrentCacheName() string {
	if snapshot := w.active.Get(); snapshot != nil {
		return snapshot.CacheName
	}
	return ""
}

func (w *Worker) setPhase(gen *generation, phase Phase) {
	w.mu.Lock()
	gen.phase = phase
	w.mu.Unlock()
	for _, observer := range w.observers {
		observer.PhaseChanged(gen.cfg.CacheName, phase)
	}
}
