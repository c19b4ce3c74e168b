package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"fiado_cache/internal/cache"
	"fiado_cache/internal/obs"
	"fiado_cache/internal/worker"
)

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

// switchableOrigin serves the FiadoApp static files until it is taken
// offline, after which every connection is refused.
type switchableOrigin struct {
	server    *httptest.Server
	forwarder *Forwarder
	hits      atomic.Int64
}

func newSwitchableOrigin(t *testing.T) *switchableOrigin {
	t.Helper()
	origin := &switchableOrigin{}
	origin.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin.hits.Add(1)
		switch r.URL.Path {
		case "/", "/static/index.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html>fiado</html>")
		case "/manifest.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"name":"FiadoApp"}`)
		case "/ventas":
			_, _ = io.WriteString(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(origin.server.Close)
	return origin
}

func (o *switchableOrigin) goOffline() {
	o.server.Close()
	if o.forwarder != nil {
		o.forwarder.CloseIdleConnections()
	}
}

func newTestEdge(t *testing.T, origin *switchableOrigin, logger obs.Logger) (*Handler, *worker.Worker) {
	t.Helper()
	forwarder, err := NewForwarder(ForwarderConfig{Origin: origin.server.URL})
	if err != nil {
		t.Fatalf("forwarder: %v", err)
	}
	origin.forwarder = forwarder
	w, err := worker.New(worker.Options{Storage: cache.NewMemoryStorage(0), Network: forwarder})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	if _, _, err := w.Update(context.Background(), worker.Config{CacheName: "fiadoapp-v1"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	return &Handler{Worker: w, Logger: logger, Metrics: obs.NewMetrics(), Upstream: origin.server.URL}, w
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ProxyErrorBody {
	t.Helper()
	var body ProxyErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHandlerServesNetworkWhenOnline(t *testing.T) {
	origin := newSwitchableOrigin(t)
	handler, _ := newTestEdge(t, origin, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/index.html", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "<html>fiado</html>" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(CacheStatusHeader) != "network" {
		t.Fatalf("expected network cache status, got %q", rec.Header().Get(CacheStatusHeader))
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHandlerFallsBackWhenOffline(t *testing.T) {
	origin := newSwitchableOrigin(t)
	handler, _ := newTestEdge(t, origin, nil)
	origin.goOffline()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/static/index.html", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "<html>fiado</html>" {
		t.Fatalf("expected cached copy, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(CacheStatusHeader) != "fallback" {
		t.Fatalf("expected fallback cache status, got %q", rec.Header().Get(CacheStatusHeader))
	}
	if rec.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected client request id kept, got %q", rec.Header().Get(RequestIDHeader))
	}
	if rec.Header().Get("Content-Type") != "text/html" {
		t.Fatalf("expected cached headers, got %q", rec.Header().Get("Content-Type"))
	}
}

func TestHandlerOfflineMissWritesError(t *testing.T) {
	origin := newSwitchableOrigin(t)
	handler, _ := newTestEdge(t, origin, nil)
	origin.goOffline()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	body := decodeErrorBody(t, rec)
	if body.ErrorCategory != "offline_miss" || body.RequestID == "" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestHandlerAPIOfflineHasNoFallback(t *testing.T) {
	origin := newSwitchableOrigin(t)
	handler, w := newTestEdge(t, origin, nil)
	if w.CurrentCacheName() != "fiadoapp-v1" {
		t.Fatalf("expected active worker")
	}
	origin.goOffline()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ventas", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if rec.Header().Get(CacheStatusHeader) != "bypass" {
		t.Fatalf("expected bypass cache status, got %q", rec.Header().Get(CacheStatusHeader))
	}
	body := decodeErrorBody(t, rec)
	if body.ErrorCategory != "upstream_connect_failed" {
		t.Fatalf("expected connect failure, got %+v", body)
	}
}

func TestHandlerForwardsMutations(t *testing.T) {
	origin := newSwitchableOrigin(t)
	handler, _ := newTestEdge(t, origin, nil)
	before := origin.hits.Load()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ventas", strings.NewReader(`{}`)))

	if rec.Code != http.StatusOK || rec.Header().Get(CacheStatusHeader) != "bypass" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get(CacheStatusHeader))
	}
	if origin.hits.Load() != before+1 {
		t.Fatalf("expected mutation to reach origin")
	}
}

func TestHandlerWritesAccessLog(t *testing.T) {
	origin := newSwitchableOrigin(t)
	var buf bytes.Buffer
	logger, err := obs.NewLogger(obs.LogConfig{Backend: "zap", Level: "info"}, &buf)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	handler, _ := newTestEdge(t, origin, logger)
	buf.Reset()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/manifest.json", nil)
	req.Header.Set(RequestIDHeader, "access-1")
	handler.ServeHTTP(rec, req)

	var entry map[string]any
	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		entry = map[string]any{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["msg"] == "access" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected access log line, got %s", buf.String())
	}
	if entry["request_id"] != "access-1" || entry["cache_status"] != "network" || entry["cache_name"] != "fiadoapp-v1" {
		t.Fatalf("unexpected access log %v", entry)
	}
	if status, ok := entry["status"].(float64); !ok || int(status) != http.StatusOK {
		t.Fatalf("expected status 200 in access log, got %v", entry["status"])
	}
}

func TestFetchErrorResponseMapping(t *testing.T) {
	timeoutErr := &UpstreamError{Category: CategoryTimeout, Err: context.DeadlineExceeded}
	status, category, _ := fetchErrorResponse(timeoutErr)
	if status != http.StatusGatewayTimeout || category != "upstream_timeout" {
		t.Fatalf("unexpected mapping %d %s", status, category)
	}

	missErr := fmt.Errorf("%w: %w", worker.ErrOfflineMiss, timeoutErr)
	status, category, _ = fetchErrorResponse(missErr)
	if status != http.StatusGatewayTimeout || category != "offline_miss" {
		t.Fatalf("unexpected miss mapping %d %s", status, category)
	}

	status, category, _ = fetchErrorResponse(io.ErrUnexpectedEOF)
	if status != http.StatusBadGateway || category != "bad_gateway" {
		t.Fatalf("unexpected default mapping %d %s", status, category)
	}
}
