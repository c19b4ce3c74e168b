package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleJSON = `{
  "listen_addr": "127.0.0.1:0",
  "origin_url": "http://127.0.0.1:8000",
  "worker": {
    "cache_name": "fiadoapp-v1",
    "static_assets": ["/", "/static/index.html", "/manifest.json"]
  },
  "storage": {"backend": "bigcache", "codec": "cbor", "bigcache": {"shards": 32}}
}`

const sampleYAML = `
listen_addr: 127.0.0.1:0
origin_url: http://127.0.0.1:8000
worker:
  cache_name: fiadoapp-v1
  static_assets:
    - /
    - /static/index.html
    - /manifest.json
storage:
  backend: bigcache
  codec: cbor
  bigcache:
    shards: 32
`

const sampleTOML = `
listen_addr = "127.0.0.1:0"
origin_url = "http://127.0.0.1:8000"

[worker]
cache_name = "fiadoapp-v1"
static_assets = ["/", "/static/index.html", "/manifest.json"]

[storage]
backend = "bigcache"
codec = "cbor"

[storage.bigcache]
shards = 32
`

func TestParseFormatsAgree(t *testing.T) {
	inputs := map[string]string{
		FormatJSON: sampleJSON,
		FormatYAML: sampleYAML,
		FormatTOML: sampleTOML,
	}
	for format, input := range inputs {
		t.Run(format, func(t *testing.T) {
			cfg, err := Parse([]byte(input), format)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if cfg.OriginURL != "http://127.0.0.1:8000" {
				t.Fatalf("unexpected origin %q", cfg.OriginURL)
			}
			if cfg.Worker.CacheName != "fiadoapp-v1" {
				t.Fatalf("unexpected cache name %q", cfg.Worker.CacheName)
			}
			if strings.Join(cfg.Worker.StaticAssets, ",") != "/,/static/index.html,/manifest.json" {
				t.Fatalf("unexpected static assets %v", cfg.Worker.StaticAssets)
			}
			if cfg.Storage.Backend != "bigcache" || cfg.Storage.Codec != "cbor" || cfg.Storage.Bigcache.Shards != 32 {
				t.Fatalf("unexpected storage %+v", cfg.Storage)
			}
			if _, err := Validate(cfg); err != nil {
				t.Fatalf("validate: %v", err)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := ParseJSON([]byte(`{"origin_url": "http://x", "cache": "v1"}`)); err == nil {
		t.Fatalf("expected unknown json field error")
	}
	if _, err := ParseYAML([]byte("origin_url: http://x\ncache: v1\n")); err == nil {
		t.Fatalf("expected unknown yaml field error")
	}
	if _, err := Parse([]byte("{}"), "ini"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]string{
		"fiado.json": FormatJSON,
		"fiado.yml":  FormatYAML,
		"fiado.YAML": FormatYAML,
		"fiado.toml": FormatTOML,
		"fiado.conf": FormatJSON,
	}
	for path, want := range cases {
		if got := FormatFromPath(path); got != want {
			t.Fatalf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fiado.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FIADO_CACHE_NAME", "fiadoapp-v2")
	t.Setenv("FIADO_STATIC_ASSETS", "/,/manifest.json")
	t.Setenv("FIADO_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Worker.CacheName != "fiadoapp-v2" {
		t.Fatalf("expected env cache name, got %q", cfg.Worker.CacheName)
	}
	if strings.Join(cfg.Worker.StaticAssets, ",") != "/,/manifest.json" {
		t.Fatalf("expected env static assets, got %v", cfg.Worker.StaticAssets)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Log.Level)
	}
	if cfg.OriginURL != "http://127.0.0.1:8000" {
		t.Fatalf("expected file origin to survive, got %q", cfg.OriginURL)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		return &Config{
			OriginURL: "http://127.0.0.1:8000",
			Worker:    WorkerConfig{CacheName: "fiadoapp-v1"},
		}
	}
	cases := map[string]func(*Config){
		"missing origin":     func(c *Config) { c.OriginURL = "" },
		"bad origin scheme":  func(c *Config) { c.OriginURL = "ftp://origin" },
		"missing cache name": func(c *Config) { c.Worker.CacheName = " " },
		"empty asset":        func(c *Config) { c.Worker.StaticAssets = []string{"/", ""} },
		"empty fragment":     func(c *Config) { c.Worker.BypassFragments = []string{""} },
		"unknown backend":    func(c *Config) { c.Storage.Backend = "memcached" },
		"unknown codec":      func(c *Config) { c.Storage.Codec = "gob" },
		"redis without addr": func(c *Config) { c.Storage.Backend = "redis" },
		"sqlite without path": func(c *Config) {
			c.Storage.Backend = "sqlite"
		},
		"bigcache shards": func(c *Config) {
			c.Storage.Backend = "bigcache"
			c.Storage.Bigcache.Shards = 12
		},
		"negative dial timeout": func(c *Config) { c.Upstream.DialTimeoutMS = -1 },
		"unknown log backend":   func(c *Config) { c.Log.Backend = "syslog" },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if _, err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidateWarnsOnEmptyStaticAssets(t *testing.T) {
	cfg := &Config{
		OriginURL: "http://127.0.0.1:8000",
		Worker:    WorkerConfig{CacheName: "fiadoapp-v1", StaticAssets: []string{}},
	}
	warnings, err := Validate(cfg)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}

func TestLoadDefaultsCacheName(t *testing.T) {
	t.Setenv("FIADO_CACHE_NAME", "")
	path := filepath.Join(t.TempDir(), "fiado.json")
	if err := os.WriteFile(path, []byte(`{"origin_url":"http://127.0.0.1:8000"}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Worker.CacheName != DefaultCacheName {
		t.Fatalf("expected default cache name, got %q", cfg.Worker.CacheName)
	}
	if _, err := Validate(cfg); err != nil {
		t.Fatalf("expected defaulted config to validate, got %v", err)
	}

	bare, err := Load("")
	if err != nil {
		t.Fatalf("load without file: %v", err)
	}
	if bare.Worker.CacheName != DefaultCacheName {
		t.Fatalf("expected default cache name without a file, got %q", bare.Worker.CacheName)
	}

	t.Setenv("FIADO_CACHE_NAME", "fiadoapp-v7")
	overridden, err := Load(path)
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if overridden.Worker.CacheName != "fiadoapp-v7" {
		t.Fatalf("expected env to win over default, got %q", overridden.Worker.CacheName)
	}
}
