package runtime

import (
	"context"
	"fmt"
	"time"

	"fiado_cache/internal/config"
)

// ShutdownConfig bounds an edge shutdown. Drain is how long in-flight
// fetches may keep running after the listener closes, GracefulTimeout
// bounds the server shutdown that follows, and ForceClose is the pause
// before remaining connections are cut.
type ShutdownConfig struct {
	Drain           time.Duration
	GracefulTimeout time.Duration
	ForceClose      time.Duration
}

func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Drain:           2 * time.Second,
		GracefulTimeout: 5 * time.Second,
		ForceClose:      2 * time.Second,
	}
}

func ShutdownFromConfig(cfg config.ShutdownConfig) (ShutdownConfig, error) {
	shutdown := DefaultShutdownConfig()
	fields := []struct {
		name string
		ms   int
		dst  *time.Duration
	}{
		{"drain_ms", cfg.DrainMS, &shutdown.Drain},
		{"graceful_timeout_ms", cfg.GracefulTimeoutMS, &shutdown.GracefulTimeout},
		{"force_close_ms", cfg.ForceCloseMS, &shutdown.ForceClose},
	}
	for _, field := range fields {
		switch {
		case field.ms < 0:
			return ShutdownConfig{}, fmt.Errorf("shutdown.%s must be non-negative", field.name)
		case field.ms > 0:
			*field.dst = time.Duration(field.ms) * time.Millisecond
		}
	}
	return shutdown, nil
}

// WithDefaults fills unset durations from DefaultShutdownConfig.
func (c ShutdownConfig) WithDefaults() ShutdownConfig {
	defaults := DefaultShutdownConfig()
	if c.Drain <= 0 {
		c.Drain = defaults.Drain
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = defaults.GracefulTimeout
	}
	if c.ForceClose <= 0 {
		c.ForceClose = defaults.ForceClose
	}
	return c
}

// DrainInflight waits at most c.Drain for inflight to go idle and returns
// how many fetches were still running when it stopped waiting.
func (c ShutdownConfig) DrainInflight(ctx context.Context, inflight *InflightTracker) int64 {
	if c.Drain > 0 {
		drainCtx, cancel := context.WithTimeout(ctx, c.Drain)
		defer cancel()
		_ = inflight.Wait(drainCtx)
	}
	return inflight.Count()
}
