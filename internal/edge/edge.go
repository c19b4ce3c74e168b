// Package edge assembles the offline cache edge from a config: storage,
// network, worker, HTTP router and the optional gRPC health listener.
package edge

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"fiado_cache/internal/cache"
	"fiado_cache/internal/config"
	"fiado_cache/internal/health"
	"fiado_cache/internal/limits"
	"fiado_cache/internal/obs"
	"fiado_cache/internal/provider"
	"fiado_cache/internal/proxy"
	"fiado_cache/internal/runtime"
	"fiado_cache/internal/server"
	"fiado_cache/internal/worker"
)

const defaultListenAddr = "127.0.0.1:8080"

type Options struct {
	// Logger overrides the logger built from the log section.
	Logger    obs.Logger
	LogWriter io.Writer
	// Storage overrides the storage built from the storage section.
	Storage cache.Storage
}

type Edge struct {
	Config    *config.Config
	Logger    obs.Logger
	Metrics   *obs.Metrics
	Storage   cache.Storage
	Forwarder *proxy.Forwarder
	Worker    *worker.Worker
	Reporter  *health.Reporter
	Reloader  *provider.Reloader
	Server    *server.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// Start validates cfg, installs and activates the configured generation,
// then starts serving. A failed initial update aborts the start.
func Start(ctx context.Context, cfg *config.Config, opts Options) (*Edge, error) {
	config.ApplyDefaults(cfg)
	warnings, err := config.Validate(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		writer := opts.LogWriter
		if writer == nil {
			writer = os.Stdout
		}
		logger, err = obs.NewLogger(obs.LogConfig{Backend: cfg.Log.Backend, Level: cfg.Log.Level}, writer)
		if err != nil {
			return nil, err
		}
	}
	for _, warning := range warnings {
		logger.Warn("config warning", obs.Fields{"warning": warning})
	}

	limitConfig, err := limits.FromConfig(cfg.Limits)
	if err != nil {
		return nil, err
	}
	shutdownConfig, err := runtime.ShutdownFromConfig(cfg.Shutdown)
	if err != nil {
		return nil, err
	}

	metrics := obs.NewMetrics()
	storage := opts.Storage
	if storage == nil {
		storage, err = cache.NewStorage(StorageOptions(cfg.Storage))
		if err != nil {
			return nil, fmt.Errorf("cache storage: %w", err)
		}
	}

	forwarder, err := proxy.NewForwarder(proxy.ForwarderConfig{
		Origin:                cfg.OriginURL,
		DialTimeout:           time.Duration(cfg.Upstream.DialTimeoutMS) * time.Millisecond,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.ResponseHeaderTimeoutMS) * time.Millisecond,
		Metrics:               metrics,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	reporter := health.NewReporter()
	w, err := worker.New(worker.Options{
		Storage:   storage,
		Network:   forwarder,
		Logger:    logger,
		Metrics:   metrics,
		Observers: []worker.PhaseObserver{reporter},

		MaxAssetBytes: cfg.Storage.MaxObjectBytes,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	reloader := provider.NewReloader(w, logger)
	if _, err := reloader.Apply(ctx, cfg); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("initial worker update: %w", err)
	}

	inflight := runtime.NewInflightTracker()
	handler := &proxy.Handler{
		Worker:   w,
		Logger:   logger,
		Metrics:  metrics,
		Inflight: inflight,
		Upstream: forwarder.Origin().Host,
	}
	router := chi.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.Handle("/healthz", health.Handler(w))
	router.Handle("/*", handler)

	var grpcServer *grpc.Server
	if cfg.GRPCHealthAddr != "" {
		grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		reporter.Register(grpcServer)
	}

	listenAddr := cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}
	serverHandle, err := server.StartServers(router, listenAddr, server.Options{
		Limits:   limitConfig,
		Shutdown: shutdownConfig,
		Inflight: inflight,
		Logger:   logger,
		Stoppers: []server.Stopper{server.StopFunc(func(context.Context) error {
			reporter.Shutdown()
			return nil
		})},
		CloseIdle: []func(){forwarder.CloseIdleConnections},
		GRPC:      grpcServer,
		GRPCAddr:  cfg.GRPCHealthAddr,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	fields := obs.Fields{"http_addr": serverHandle.HTTPAddr, "origin": cfg.OriginURL, "cache_name": w.CurrentCacheName()}
	if serverHandle.GRPCAddr != "" {
		fields["grpc_health_addr"] = serverHandle.GRPCAddr
	}
	logger.Info("edge listening", fields)

	return &Edge{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Storage:   storage,
		Forwarder: forwarder,
		Worker:    w,
		Reporter:  reporter,
		Reloader:  reloader,
		Server:    serverHandle,
	}, nil
}

// Watch reloads the config file at path until ctx is done, updating the
// worker on every cache name or asset list change.
func (e *Edge) Watch(ctx context.Context, path string) error {
	file := provider.NewFileProvider(path, e.Logger)
	return file.Watch(ctx, e.Reloader.OnChange)
}

// Shutdown drains the servers and closes the cache storage.
func (e *Edge) Shutdown() error {
	if e == nil {
		return nil
	}
	e.shutdownOnce.Do(func() {
		err := e.Server.Shutdown()
		if closeErr := e.Storage.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if syncer, ok := e.Logger.(interface{ Sync() error }); ok {
			_ = syncer.Sync()
		}
		e.shutdownErr = err
	})
	return e.shutdownErr
}

// StorageOptions maps the storage section onto cache options.
func StorageOptions(cfg config.StorageConfig) cache.Options {
	return cache.Options{
		Backend:        cfg.Backend,
		Codec:          cfg.Codec,
		MaxObjectBytes: cfg.MaxObjectBytes,
		Bigcache: cache.BigcacheConfig{
			Shards:             cfg.Bigcache.Shards,
			LifeWindow:         time.Duration(cfg.Bigcache.LifeWindowMS) * time.Millisecond,
			MaxEntriesInWindow: cfg.Bigcache.MaxEntriesInWindow,
			MaxEntrySize:       cfg.Bigcache.MaxEntrySize,
			HardMaxCacheSizeMB: cfg.Bigcache.HardMaxCacheSizeMB,
		},
		Ristretto: cache.RistrettoConfig{
			NumCounters: cfg.Ristretto.NumCounters,
			MaxCost:     cfg.Ristretto.MaxCost,
			BufferItems: cfg.Ristretto.BufferItems,
		},
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   cfg.RedisPrefix,
		SQLitePath:    cfg.SQLitePath,
	}
}
