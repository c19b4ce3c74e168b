package obs

import (
	"strings"
)

// LogAccess writes one access log line for a finished request.
func LogAccess(logger Logger, ctx RequestContext) {
	if logger == nil {
		return
	}
	fields := Fields{
		"request_id":     defaultString(ctx.RequestID, "none"),
		"method":         ctx.Method,
		"host":           ctx.Host,
		"path":           ctx.Path,
		"cache_name":     defaultString(ctx.CacheName, "none"),
		"cache_status":   defaultString(ctx.CacheStatus, "bypass"),
		"upstream":       defaultString(ctx.Upstream, "none"),
		"status":         ctx.Status,
		"duration_ms":    ctx.Duration.Milliseconds(),
		"bytes_in":       ctx.BytesIn,
		"bytes_out":      ctx.BytesOut,
		"error_category": defaultString(ctx.ErrorCategory, "none"),
	}
	if ctx.UserAgent != "" {
		fields["user_agent"] = ctx.UserAgent
	}
	if ctx.RemoteAddr != "" {
		fields["remote_addr"] = ctx.RemoteAddr
	}
	logger.Info("access", fields)
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func RedactHeaderValue(name, value string) string {
	if name == "" {
		return value
	}
	if isSensitiveHeader(name) {
		return "[redacted]"
	}
	return value
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key", "proxy-authorization":
		return true
	default:
		return false
	}
}
