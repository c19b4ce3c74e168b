package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fiado_cache/internal/config"
	"fiado_cache/internal/edge"
	"fiado_cache/internal/obs"
)

func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.SetupTracing(ctx, obs.TracingConfig{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	e, err := edge.Start(ctx, cfg, edge.Options{})
	if err != nil {
		log.Fatalf("start edge: %v", err)
	}

	if path != "" {
		go func() {
			if err := e.Watch(ctx, path); err != nil {
				e.Logger.Warn("config watch stopped", obs.Fields{"path": path, "error": err.Error()})
			}
		}()
	}

	<-ctx.Done()
	e.Logger.Info("shutdown signal received", nil)
	if err := e.Shutdown(); err != nil {
		e.Logger.Error("shutdown", obs.Fields{"error": err.Error()})
	}
	if err := shutdownTracing(context.Background()); err != nil {
		e.Logger.Warn("tracing shutdown", obs.Fields{"error": err.Error()})
	}
}
