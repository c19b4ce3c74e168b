package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"fiado_cache/internal/worker"
)

const (
	RequestIDHeader   = "X-Request-Id"
	CacheStatusHeader = "X-Cache-Status"
)

const (
	CategoryTimeout       = "timeout"
	CategoryConnectFailed = "connect_failed"
	CategoryOther         = "other"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// UpstreamError is a transport failure talking to the origin.
type UpstreamError struct {
	Category string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Category, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type ProxyErrorBody struct {
	Status        int    `json:"status"`
	RequestID     string `json:"request_id"`
	ErrorCategory string `json:"error_category"`
	Message       string `json:"message"`
}

func WriteProxyError(w http.ResponseWriter, requestID string, status int, category string, message string) {
	if recorder, ok := w.(errorCategoryWriter); ok {
		recorder.SetErrorCategory(category)
	}
	w.Header().Set(RequestIDHeader, requestID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProxyErrorBody{
		Status:        status,
		RequestID:     requestID,
		ErrorCategory: category,
		Message:       message,
	})
}

// fetchErrorResponse maps a failed fetch to the edge status, category and
// message written to the page.
func fetchErrorResponse(err error) (int, string, string) {
	status := http.StatusBadGateway
	networkCategory := ClassifyError(err)
	if networkCategory == CategoryTimeout {
		status = http.StatusGatewayTimeout
	}

	if errors.Is(err, worker.ErrOfflineMiss) {
		return status, "offline_miss", "origin unreachable and resource not cached"
	}
	switch networkCategory {
	case CategoryTimeout:
		return status, "upstream_timeout", "upstream timeout"
	case CategoryConnectFailed:
		return status, "upstream_connect_failed", "upstream connect failed"
	default:
		return status, "bad_gateway", "upstream request failed"
	}
}

// ClassifyError returns the network failure category of err.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Category
	}
	if isTimeoutError(err) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	if isDialError(err) {
		return CategoryConnectFailed
	}
	return CategoryOther
}

func isClientCanceled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(requestIDKey).(string)
	return value, ok
}
