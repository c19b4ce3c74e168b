package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

type Config struct {
	ListenAddr     string         `json:"listen_addr" yaml:"listen_addr" toml:"listen_addr" env:"FIADO_LISTEN_ADDR"`
	OriginURL      string         `json:"origin_url" yaml:"origin_url" toml:"origin_url" env:"FIADO_ORIGIN_URL"`
	GRPCHealthAddr string         `json:"grpc_health_addr" yaml:"grpc_health_addr" toml:"grpc_health_addr" env:"FIADO_GRPC_HEALTH_ADDR"`
	Worker         WorkerConfig   `json:"worker" yaml:"worker" toml:"worker"`
	Storage        StorageConfig  `json:"storage" yaml:"storage" toml:"storage"`
	Upstream       UpstreamConfig `json:"upstream" yaml:"upstream" toml:"upstream"`
	Limits         LimitsConfig   `json:"limits" yaml:"limits" toml:"limits"`
	Shutdown       ShutdownConfig `json:"shutdown" yaml:"shutdown" toml:"shutdown"`
	Log            LogConfig      `json:"log" yaml:"log" toml:"log"`
	Tracing        TracingConfig  `json:"tracing" yaml:"tracing" toml:"tracing"`
}

// DefaultCacheName is the cache version tag used when none is configured.
const DefaultCacheName = "fiadoapp-v1"

// WorkerConfig carries the cache version tag and the asset lists. A nil
// list selects the built-in default; an explicitly empty list disables it.
type WorkerConfig struct {
	CacheName       string   `json:"cache_name" yaml:"cache_name" toml:"cache_name" env:"FIADO_CACHE_NAME"`
	StaticAssets    []string `json:"static_assets" yaml:"static_assets" toml:"static_assets" env:"FIADO_STATIC_ASSETS"`
	BypassFragments []string `json:"bypass_fragments" yaml:"bypass_fragments" toml:"bypass_fragments" env:"FIADO_BYPASS_FRAGMENTS"`
}

type StorageConfig struct {
	Backend        string          `json:"backend" yaml:"backend" toml:"backend" env:"FIADO_STORAGE_BACKEND"`
	Codec          string          `json:"codec" yaml:"codec" toml:"codec" env:"FIADO_STORAGE_CODEC"`
	MaxObjectBytes int64           `json:"max_object_bytes" yaml:"max_object_bytes" toml:"max_object_bytes" env:"FIADO_STORAGE_MAX_OBJECT_BYTES"`
	SQLitePath     string          `json:"sqlite_path" yaml:"sqlite_path" toml:"sqlite_path" env:"FIADO_SQLITE_PATH"`
	RedisAddr      string          `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr" env:"FIADO_REDIS_ADDR"`
	RedisPassword  string          `json:"redis_password" yaml:"redis_password" toml:"redis_password" env:"FIADO_REDIS_PASSWORD"`
	RedisDB        int             `json:"redis_db" yaml:"redis_db" toml:"redis_db" env:"FIADO_REDIS_DB"`
	RedisPrefix    string          `json:"redis_prefix" yaml:"redis_prefix" toml:"redis_prefix" env:"FIADO_REDIS_PREFIX"`
	Bigcache       BigcacheConfig  `json:"bigcache" yaml:"bigcache" toml:"bigcache"`
	Ristretto      RistrettoConfig `json:"ristretto" yaml:"ristretto" toml:"ristretto"`
}

type BigcacheConfig struct {
	Shards             int `json:"shards" yaml:"shards" toml:"shards"`
	LifeWindowMS       int `json:"life_window_ms" yaml:"life_window_ms" toml:"life_window_ms"`
	MaxEntriesInWindow int `json:"max_entries_in_window" yaml:"max_entries_in_window" toml:"max_entries_in_window"`
	MaxEntrySize       int `json:"max_entry_size" yaml:"max_entry_size" toml:"max_entry_size"`
	HardMaxCacheSizeMB int `json:"hard_max_cache_size_mb" yaml:"hard_max_cache_size_mb" toml:"hard_max_cache_size_mb"`
}

type RistrettoConfig struct {
	NumCounters int64 `json:"num_counters" yaml:"num_counters" toml:"num_counters"`
	MaxCost     int64 `json:"max_cost" yaml:"max_cost" toml:"max_cost"`
	BufferItems int64 `json:"buffer_items" yaml:"buffer_items" toml:"buffer_items"`
}

type UpstreamConfig struct {
	DialTimeoutMS           int `json:"dial_timeout_ms" yaml:"dial_timeout_ms" toml:"dial_timeout_ms" env:"FIADO_UPSTREAM_DIAL_TIMEOUT_MS"`
	ResponseHeaderTimeoutMS int `json:"response_header_timeout_ms" yaml:"response_header_timeout_ms" toml:"response_header_timeout_ms" env:"FIADO_UPSTREAM_RESPONSE_HEADER_TIMEOUT_MS"`
}

type LimitsConfig struct {
	MaxHeaderBytes      int `json:"max_header_bytes" yaml:"max_header_bytes" toml:"max_header_bytes"`
	ReadHeaderTimeoutMS int `json:"read_header_timeout_ms" yaml:"read_header_timeout_ms" toml:"read_header_timeout_ms"`
	ReadTimeoutMS       int `json:"read_timeout_ms" yaml:"read_timeout_ms" toml:"read_timeout_ms"`
	WriteTimeoutMS      int `json:"write_timeout_ms" yaml:"write_timeout_ms" toml:"write_timeout_ms"`
	IdleTimeoutMS       int `json:"idle_timeout_ms" yaml:"idle_timeout_ms" toml:"idle_timeout_ms"`
}

type ShutdownConfig struct {
	DrainMS           int `json:"drain_ms" yaml:"drain_ms" toml:"drain_ms"`
	GracefulTimeoutMS int `json:"graceful_timeout_ms" yaml:"graceful_timeout_ms" toml:"graceful_timeout_ms"`
	ForceCloseMS      int `json:"force_close_ms" yaml:"force_close_ms" toml:"force_close_ms"`
}

type LogConfig struct {
	Backend string `json:"backend" yaml:"backend" toml:"backend" env:"FIADO_LOG_BACKEND"`
	Level   string `json:"level" yaml:"level" toml:"level" env:"FIADO_LOG_LEVEL"`
}

type TracingConfig struct {
	Endpoint    string `json:"endpoint" yaml:"endpoint" toml:"endpoint" env:"FIADO_OTEL_ENDPOINT"`
	ServiceName string `json:"service_name" yaml:"service_name" toml:"service_name" env:"FIADO_OTEL_SERVICE_NAME"`
}

func ParseJSON(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ParseTOML(data []byte) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes data in the given format.
func Parse(data []byte, format string) (*Config, error) {
	switch format {
	case FormatJSON, "":
		return ParseJSON(data)
	case FormatYAML:
		return ParseYAML(data)
	case FormatTOML:
		return ParseTOML(data)
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}

// FormatFromPath picks the decoder from the file extension; unknown
// extensions are treated as JSON.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// ApplyEnv overrides cfg with any FIADO_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the file at path, decodes it by extension, applies
// environment overrides and then defaults. An empty path yields a config
// built from the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		cfg, err = Parse(data, FormatFromPath(path))
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyDefaults fills settings that have a built-in value and were left
// blank by the file and the environment.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Worker.CacheName) == "" {
		cfg.Worker.CacheName = DefaultCacheName
	}
}
