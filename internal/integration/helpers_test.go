package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fiado_cache/internal/config"
	"fiado_cache/internal/edge"
	"fiado_cache/internal/proxy"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// logLines returns the decoded JSON log lines whose msg equals msg.
func (b *syncBuffer) logLines(t *testing.T, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["msg"] == msg {
			out = append(out, entry)
		}
	}
	return out
}

func baseConfig(originURL string, cacheName string) *config.Config {
	return &config.Config{
		ListenAddr: "127.0.0.1:0",
		OriginURL:  originURL,
		Worker:     config.WorkerConfig{CacheName: cacheName},
		Shutdown:   config.ShutdownConfig{DrainMS: 10, GracefulTimeoutMS: 2000, ForceCloseMS: 10},
		Log:        config.LogConfig{Backend: "zap", Level: "debug"},
	}
}

func startEdge(t *testing.T, cfg *config.Config) (*edge.Edge, *syncBuffer) {
	t.Helper()
	logs := &syncBuffer{}
	e, err := edge.Start(context.Background(), cfg, edge.Options{LogWriter: logs})
	if err != nil {
		t.Fatalf("start edge: %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, logs
}

func get(t *testing.T, e *edge.Edge, path string) (*http.Response, string) {
	t.Helper()
	return do(t, e, http.MethodGet, path, nil)
}

func do(t *testing.T, e *edge.Edge, method string, path string, body io.Reader) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, "http://"+e.Server.HTTPAddr+path, body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(data)
}

func decodeProxyError(t *testing.T, body string) proxy.ProxyErrorBody {
	t.Helper()
	var out proxy.ProxyErrorBody
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return out
}

func httpTestServer(t *testing.T, fn http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(fn)
	t.Cleanup(server.Close)
	return server.URL
}
