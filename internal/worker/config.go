package worker

import (
	"errors"
	"strings"

	"fiado_cache/internal/config"
)

// DefaultCacheName is the version tag of a generation configured without one.
const DefaultCacheName = config.DefaultCacheName

var (
	defaultStaticAssets    = []string{"/", "/static/index.html", "/manifest.json"}
	defaultBypassFragments = []string{"/auth/", "/contactos", "/ventas", "/stock", "/negocios", "/resumen"}
)

// Config is one worker generation: the cache version tag plus the asset
// lists it serves. A nil list selects the default; an empty list does not.
type Config struct {
	CacheName       string
	StaticAssets    []string
	BypassFragments []string
}

func DefaultStaticAssets() []string {
	return append([]string(nil), defaultStaticAssets...)
}

func DefaultBypassFragments() []string {
	return append([]string(nil), defaultBypassFragments...)
}

// FromConfig maps file configuration to a generation. A blank cache name
// selects DefaultCacheName.
func FromConfig(cfg config.WorkerConfig) Config {
	name := cfg.CacheName
	if strings.TrimSpace(name) == "" {
		name = DefaultCacheName
	}
	return Config{
		CacheName:       name,
		StaticAssets:    cfg.StaticAssets,
		BypassFragments: cfg.BypassFragments,
	}
}

// normalized returns a copy of c with defaults applied. The copy owns its
// slices so later edits to the caller's config cannot leak into an
// installed generation.
func (c Config) normalized() Config {
	out := Config{CacheName: strings.TrimSpace(c.CacheName)}
	if c.StaticAssets == nil {
		out.StaticAssets = DefaultStaticAssets()
	} else {
		out.StaticAssets = append([]string{}, c.StaticAssets...)
	}
	if c.BypassFragments == nil {
		out.BypassFragments = DefaultBypassFragments()
	} else {
		out.BypassFragments = append([]string{}, c.BypassFragments...)
	}
	return out
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.CacheName) == "" {
		return errors.New("cache name is required")
	}
	for _, asset := range c.StaticAssets {
		if strings.TrimSpace(asset) == "" {
			return errors.New("static asset must not be empty")
		}
	}
	for _, fragment := range c.BypassFragments {
		if fragment == "" {
			return errors.New("bypass fragment must not be empty")
		}
	}
	return nil
}

// Equal reports whether two configs describe the same generation.
func (c Config) Equal(other Config) bool {
	a := c.normalized()
	b := other.normalized()
	return a.CacheName == b.CacheName &&
		equalStrings(a.StaticAssets, b.StaticAssets) &&
		equalStrings(a.BypassFragments, b.BypassFragments)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
