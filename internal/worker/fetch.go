package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"fiado_cache/internal/cache"
	"fiado_cache/internal/obs"
)

// Fetch answers req. Non-GET requests, requests matching a bypass
// fragment and requests arriving before any generation is active go
// straight to the network. Everything else is network first with a
// fallback to the current cache store on a transport failure.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (FetchResult, error) {
	if req == nil || req.URL == nil {
		return FetchResult{}, errors.New("fetch: nil request")
	}

	snapshot := w.active.Acquire()
	defer w.active.Release(snapshot)

	if snapshot == nil {
		return w.passThrough(ctx, req, "")
	}
	if !interceptable(req, snapshot.BypassFragments) {
		return w.passThrough(ctx, req, snapshot.CacheName)
	}

	ctx, span := obs.StartSpan(ctx, "worker.fetch",
		attribute.String("cache.name", snapshot.CacheName),
		attribute.String("http.path", req.URL.Path),
	)
	defer span.End()

	resp, netErr := w.network.Fetch(ctx, req)
	if netErr == nil {
		return FetchResult{Response: resp, Source: SourceNetwork, CacheName: snapshot.CacheName}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return FetchResult{Source: SourceNetwork, CacheName: snapshot.CacheName}, netErr
	}

	key := cache.BuildKey(req.URL)
	entry, ok, err := snapshot.Store.Get(ctx, key)
	if err != nil {
		w.metrics.RecordFallback("error")
		w.logger.Warn("cache lookup failed", obs.Fields{
			"cache_name": snapshot.CacheName,
			"key":        key,
			"error":      err.Error(),
		})
		ok = false
	}
	if !ok {
		if err == nil {
			w.metrics.RecordFallback("miss")
		}
		span.SetAttributes(attribute.String("cache.result", "miss"))
		return FetchResult{Source: SourceFallback, CacheName: snapshot.CacheName}, fmt.Errorf("%w: %w", ErrOfflineMiss, netErr)
	}

	w.metrics.RecordFallback("hit")
	span.SetAttributes(attribute.String("cache.result", "hit"))
	w.logger.Debug("served from cache", obs.Fields{
		"cache_name": snapshot.CacheName,
		"key":        key,
		"error":      netErr.Error(),
	})
	return FetchResult{Response: entry.Response(req), Source: SourceFallback, CacheName: snapshot.CacheName}, nil
}

func (w *Worker) passThrough(ctx context.Context, req *http.Request, cacheName string) (FetchResult, error) {
	resp, err := w.network.Fetch(ctx, req)
	result := FetchResult{Source: SourceBypass, CacheName: cacheName}
	if err != nil {
		return result, err
	}
	result.Response = resp
	return result, nil
}
