package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fiado_cache/internal/cache"
	"fiado_cache/internal/obs"
)

func (w *Worker) install(ctx context.Context, cfg Config) (InstallResult, error) {
	start := time.Now()
	cfg = cfg.normalized()
	result := InstallResult{CacheName: cfg.CacheName, Phase: PhaseRedundant}
	if err := cfg.Validate(); err != nil {
		w.metrics.RecordLifecycle("install", "invalid")
		return result, fmt.Errorf("install: %w", err)
	}

	ctx, span := obs.StartSpan(ctx, "worker.install", attribute.String("cache.name", cfg.CacheName))
	defer span.End()

	gen := &generation{cfg: cfg}
	w.setPhase(gen, PhaseParsed)
	w.setPhase(gen, PhaseInstalling)

	store, err := w.storage.Open(ctx, cfg.CacheName)
	if err != nil {
		w.setPhase(gen, PhaseRedundant)
		w.metrics.RecordLifecycle("install", "error")
		w.logger.Error("install failed", obs.Fields{"cache_name": cfg.CacheName, "error": err.Error()})
		span.SetStatus(codes.Error, err.Error())
		result.Duration = time.Since(start)
		return result, fmt.Errorf("open cache %q: %w", cfg.CacheName, err)
	}
	gen.store = store

	for _, asset := range cfg.StaticAssets {
		if err := w.prime(ctx, store, asset); err != nil {
			result.Failed = append(result.Failed, AssetFailure{Asset: asset, Err: err})
			w.metrics.RecordInstallAsset("failed")
			w.logger.Warn("static asset not cached", obs.Fields{
				"cache_name": cfg.CacheName,
				"asset":      asset,
				"error":      err.Error(),
			})
			continue
		}
		result.Primed = append(result.Primed, asset)
		w.metrics.RecordInstallAsset("primed")
	}

	w.mu.Lock()
	replaced := w.pending
	w.pending = gen
	w.mu.Unlock()
	if replaced != nil && replaced != gen {
		w.setPhase(replaced, PhaseRedundant)
		w.closeStore(replaced.cfg.CacheName, replaced.store)
	}
	w.setPhase(gen, PhaseInstalled)

	result.Phase = PhaseInstalled
	result.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("assets.primed", len(result.Primed)), attribute.Int("assets.failed", len(result.Failed)))
	w.metrics.RecordLifecycle("install", "success")
	w.logger.Info("installed", obs.Fields{
		"cache_name":  cfg.CacheName,
		"primed":      len(result.Primed),
		"failed":      len(result.Failed),
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// prime fetches asset from the network and stores a 2xx response under
// the asset's request key.
func (w *Worker) prime(ctx context.Context, store cache.Store, asset string) error {
	key, err := cache.KeyForAsset(asset)
	if err != nil {
		return fmt.Errorf("parse asset url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > w.maxAsset {
		return fmt.Errorf("%w: content length %d", cache.ErrObjectTooLarge, resp.ContentLength)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, w.maxAsset+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > w.maxAsset {
		return fmt.Errorf("%w: body exceeds %d bytes", cache.ErrObjectTooLarge, w.maxAsset)
	}
	entry := cache.Entry{
		Status:   resp.StatusCode,
		Header:   storedHeader(resp.Header),
		Body:     body,
		StoredAt: w.now(),
	}
	if err := store.Set(ctx, key, entry); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// unstoredHeaders are per-connection or per-client and are dropped
// before a primed response is cached.
var unstoredHeaders = []string{
	"Content-Length",
	"Set-Cookie",
	"Set-Cookie2",
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Te",
	"Trailer",
	"Upgrade",
	"Proxy-Authenticate",
}

func storedHeader(header http.Header) http.Header {
	stored := header.Clone()
	if stored == nil {
		stored = make(http.Header)
	}
	for _, value := range stored.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			if token = strings.TrimSpace(token); token != "" {
				stored.Del(token)
			}
		}
	}
	for _, name := range unstoredHeaders {
		stored.Del(name)
	}
	return stored
}
