package provider

import (
	"context"
	"sync"

	"fiado_cache/internal/config"
	"fiado_cache/internal/obs"
	"fiado_cache/internal/worker"
)

type Updater interface {
	Update(ctx context.Context, cfg worker.Config) (worker.InstallResult, worker.ActivateResult, error)
}

// Reloader runs a worker update when the cache name or asset lists of a
// reloaded config differ from the last applied ones. Other settings need
// a restart.
type Reloader struct {
	worker  Updater
	logger  obs.Logger
	mu      sync.Mutex
	applied worker.Config
	hasCfg  bool
}

func NewReloader(w Updater, logger obs.Logger) *Reloader {
	if logger == nil {
		logger = obs.NopLogger{}
	}
	return &Reloader{worker: w, logger: logger}
}

// Apply reports whether an update ran.
func (r *Reloader) Apply(ctx context.Context, cfg *config.Config) (bool, error) {
	next := worker.FromConfig(cfg.Worker)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasCfg && r.applied.Equal(next) {
		return false, nil
	}

	_, activated, err := r.worker.Update(ctx, next)
	if err != nil {
		r.logger.Error("worker update failed", obs.Fields{"cache_name": next.CacheName, "error": err.Error()})
		return true, err
	}
	r.applied = next
	r.hasCfg = true
	r.logger.Info("worker updated", obs.Fields{"cache_name": activated.CacheName, "previous": activated.Previous})
	return true, nil
}

// OnChange adapts Apply to File.Watch.
func (r *Reloader) OnChange(ctx context.Context, cfg *config.Config) {
	_, _ = r.Apply(ctx, cfg)
}
