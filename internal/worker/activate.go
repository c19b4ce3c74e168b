package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fiado_cache/internal/obs"
	"fiado_cache/internal/runtime"
)

func (w *Worker) activate(ctx context.Context) (ActivateResult, error) {
	start := time.Now()
	w.mu.Lock()
	gen := w.pending
	w.mu.Unlock()
	if gen == nil {
		return ActivateResult{}, ErrNothingToActivate
	}
	name := gen.cfg.CacheName
	result := ActivateResult{CacheName: name}

	ctx, span := obs.StartSpan(ctx, "worker.activate", attribute.String("cache.name", name))
	defer span.End()

	w.setPhase(gen, PhaseActivating)

	names, err := w.storage.Names(ctx)
	if err != nil {
		w.setPhase(gen, PhaseInstalled)
		w.metrics.RecordLifecycle("activate", "error")
		w.logger.Error("activate failed", obs.Fields{"cache_name": name, "error": err.Error()})
		span.SetStatus(codes.Error, err.Error())
		result.Duration = time.Since(start)
		return result, &ActivationError{CacheName: name, Err: err}
	}

	// fetches move to gen before any stale store is purged
	previous := w.claim(gen)
	if previous != nil {
		result.Previous = previous.cfg.CacheName
	}

	for _, stale := range names {
		if stale == name {
			continue
		}
		deleted, err := w.storage.Delete(ctx, stale)
		if err != nil {
			result.Failed = append(result.Failed, StoreFailure{Name: stale, Err: err})
			w.metrics.RecordStaleStore("error")
			w.logger.Warn("stale cache not deleted", obs.Fields{
				"cache_name": name,
				"stale":      stale,
				"error":      err.Error(),
			})
			continue
		}
		if deleted {
			result.Deleted = append(result.Deleted, stale)
			w.metrics.RecordStaleStore("deleted")
		}
	}

	result.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("stores.deleted", len(result.Deleted)), attribute.Int("stores.failed", len(result.Failed)))
	w.metrics.RecordLifecycle("activate", "success")
	w.metrics.SetActiveCache(name)
	w.logger.Info("activated", obs.Fields{
		"cache_name":  name,
		"previous":    result.Previous,
		"deleted":     result.Deleted,
		"failed":      len(result.Failed),
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// claim publishes gen as the generation answering fetches and retires the
// one it replaces.
func (w *Worker) claim(gen *generation) *generation {
	w.active.Swap(&runtime.Snapshot{
		CacheName:       gen.cfg.CacheName,
		Store:           gen.store,
		StaticAssets:    gen.cfg.StaticAssets,
		BypassFragments: gen.cfg.BypassFragments,
		ActivatedAt:     w.now(),
	})

	w.mu.Lock()
	previous := w.current
	w.current = gen
	if w.pending == gen {
		w.pending = nil
	}
	w.mu.Unlock()

	if previous != nil {
		w.setPhase(previous, PhaseRedundant)
	}
	w.setPhase(gen, PhaseActivated)
	return previous
}
