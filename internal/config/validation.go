package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	knownBackends    = []string{"", "memory", "bigcache", "ristretto", "redis", "sqlite"}
	knownCodecs      = []string{"", "msgpack", "cbor"}
	knownLogBackends = []string{"", "zap", "logrus"}
)

func Validate(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	warnings := []string{}
	if err := validateOrigin(cfg); err != nil {
		return warnings, err
	}
	if err := validateWorker(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateStorage(cfg); err != nil {
		return warnings, err
	}
	if err := validateTimeouts(cfg); err != nil {
		return warnings, err
	}
	if !oneOf(strings.ToLower(cfg.Log.Backend), knownLogBackends) {
		return warnings, fmt.Errorf("log.backend %q is not supported", cfg.Log.Backend)
	}
	return warnings, nil
}

func validateOrigin(cfg *Config) error {
	origin := strings.TrimSpace(cfg.OriginURL)
	if origin == "" {
		return errors.New("origin_url is required")
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("origin_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("origin_url scheme must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("origin_url host is required")
	}
	return nil
}

func validateWorker(cfg *Config, warnings *[]string) error {
	if strings.TrimSpace(cfg.Worker.CacheName) == "" {
		return errors.New("worker.cache_name is required")
	}
	if cfg.Worker.StaticAssets != nil && len(cfg.Worker.StaticAssets) == 0 {
		*warnings = append(*warnings, "worker.static_assets is empty; nothing will be available offline")
	}
	for _, asset := range cfg.Worker.StaticAssets {
		if strings.TrimSpace(asset) == "" {
			return errors.New("worker.static_assets contains an empty entry")
		}
		if _, err := url.Parse(asset); err != nil {
			return fmt.Errorf("worker.static_assets %q: %w", asset, err)
		}
	}
	for _, fragment := range cfg.Worker.BypassFragments {
		if strings.TrimSpace(fragment) == "" {
			return errors.New("worker.bypass_fragments contains an empty entry")
		}
	}
	return nil
}

func validateStorage(cfg *Config) error {
	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if !oneOf(backend, knownBackends) {
		return fmt.Errorf("storage.backend %q is not supported", cfg.Storage.Backend)
	}
	if !oneOf(strings.ToLower(strings.TrimSpace(cfg.Storage.Codec)), knownCodecs) {
		return fmt.Errorf("storage.codec %q is not supported", cfg.Storage.Codec)
	}
	if cfg.Storage.MaxObjectBytes < 0 {
		return errors.New("storage.max_object_bytes must be non-negative")
	}
	switch backend {
	case "redis":
		if strings.TrimSpace(cfg.Storage.RedisAddr) == "" {
			return errors.New("storage.redis_addr is required for the redis backend")
		}
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	case "bigcache":
		shards := cfg.Storage.Bigcache.Shards
		if shards < 0 || (shards > 0 && shards&(shards-1) != 0) {
			return errors.New("storage.bigcache.shards must be a power of two")
		}
	}
	return nil
}

func validateTimeouts(cfg *Config) error {
	if cfg.Upstream.DialTimeoutMS < 0 {
		return errors.New("upstream.dial_timeout_ms must be non-negative")
	}
	if cfg.Upstream.ResponseHeaderTimeoutMS < 0 {
		return errors.New("upstream.response_header_timeout_ms must be non-negative")
	}
	if cfg.Limits.ReadHeaderTimeoutMS < 0 {
		return errors.New("limits.read_header_timeout_ms must be non-negative")
	}
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
