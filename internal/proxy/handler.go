package proxy

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"fiado_cache/internal/obs"
	"fiado_cache/internal/runtime"
	"fiado_cache/internal/worker"
)

// Dispatcher is the worker surface the edge needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev worker.Event) (worker.Result, error)
}

// Handler turns every inbound request into a fetch event and writes the
// worker's answer.
type Handler struct {
	Worker   Dispatcher
	Logger   obs.Logger
	Metrics  *obs.Metrics
	Inflight *runtime.InflightTracker
	Upstream string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set(RequestIDHeader, requestID)
	}
	recorder := NewResponseRecorder(w)

	if h == nil || h.Worker == nil {
		WriteProxyError(recorder, requestID, http.StatusServiceUnavailable, "not_ready", "edge not ready")
		return
	}
	defer h.Inflight.Begin()()

	ctx := obs.ExtractTrace(r.Context(), r)
	ctx = WithRequestID(ctx, requestID)
	ctx, span := obs.StartSpan(ctx, "edge.request",
		attribute.String("http.method", r.Method),
		attribute.String("http.path", r.URL.Path),
		attribute.String("request.id", requestID),
	)
	defer span.End()
	r = r.WithContext(ctx)

	result, err := h.Worker.Dispatch(ctx, worker.FetchEvent{Request: r})
	fetched, _ := result.(worker.FetchResult)
	recorder.SetCacheStatus(string(fetched.Source))

	if err != nil {
		h.writeFetchError(recorder, r, requestID, err)
	} else {
		h.writeResponse(recorder, fetched.Response, requestID)
	}

	duration := time.Since(start)
	span.SetAttributes(attribute.Int("http.status_code", recorder.Status()), attribute.String("cache.status", recorder.CacheStatus()))
	h.Metrics.ObserveRequest(recorder.CacheStatus(), recorder.Status(), duration)
	obs.LogAccess(h.logger(), obs.RequestContext{
		RequestID:     requestID,
		Method:        r.Method,
		Host:          r.Host,
		Path:          r.URL.Path,
		CacheName:     fetched.CacheName,
		CacheStatus:   recorder.CacheStatus(),
		Upstream:      h.Upstream,
		Status:        recorder.Status(),
		Duration:      duration,
		BytesIn:       r.ContentLength,
		BytesOut:      recorder.BytesWritten(),
		ErrorCategory: recorder.ErrorCategory(),
		UserAgent:     r.UserAgent(),
		RemoteAddr:    r.RemoteAddr,
	})
}

func (h *Handler) writeResponse(w *ResponseRecorder, resp *http.Response, requestID string) {
	if resp == nil {
		WriteProxyError(w, requestID, http.StatusBadGateway, "bad_gateway", "empty upstream response")
		return
	}
	defer resp.Body.Close()
	copyHeaders(w.Header(), resp.Header)
	w.Header().Set(RequestIDHeader, requestID)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (h *Handler) writeFetchError(w *ResponseRecorder, r *http.Request, requestID string, err error) {
	if isClientCanceled(r.Context()) {
		w.SetErrorCategory("client_canceled")
		w.status = 499
		return
	}
	status, category, message := fetchErrorResponse(err)
	h.logger().Debug("fetch failed", obs.Fields{
		"request_id": requestID,
		"path":       r.URL.Path,
		"category":   category,
		"error":      err.Error(),
		"headers":    redactedHeaders(r.Header),
	})
	WriteProxyError(w, requestID, status, category, message)
}

func (h *Handler) logger() obs.Logger {
	if h.Logger == nil {
		return obs.NopLogger{}
	}
	return h.Logger
}

func redactedHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for name := range header {
		out[name] = obs.RedactHeaderValue(name, header.Get(name))
	}
	return out
}
