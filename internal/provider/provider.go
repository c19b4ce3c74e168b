// Package provider loads the edge configuration and keeps the worker in
// step with it while the process runs.
package provider

import (
	"context"

	"fiado_cache/internal/config"
)

type Provider interface {
	Name() string
	Load(ctx context.Context) (*config.Config, error)
}
