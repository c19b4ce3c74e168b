package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"fiado_cache/internal/config"
	"fiado_cache/internal/health"
	"fiado_cache/internal/proxy"
	"fiado_cache/internal/testutil"
	"fiado_cache/internal/worker"
)

func writeConfigFile(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestConfigReloadBumpsVersion(t *testing.T) {
	origin := testutil.StartOrigin(t)
	cfg := baseConfig(origin.URL, "fiadoapp-v1")
	e, _ := startEdge(t, cfg)

	path := filepath.Join(t.TempDir(), "fiado.json")
	writeConfigFile(t, path, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx, path) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	origin.SetBody("/static/index.html", "<html>FiadoApp v2</html>")
	bumped := baseConfig(origin.URL, "fiadoapp-v2")
	testutil.Eventually(t, 5*time.Second, func() error {
		writeConfigFile(t, path, bumped)
		if name := e.Worker.CurrentCacheName(); name != "fiadoapp-v2" {
			return fmt.Errorf("active cache %q", name)
		}
		return nil
	})

	names, err := e.Storage.Names(context.Background())
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 1 || names[0] != "fiadoapp-v2" {
		t.Fatalf("expected only fiadoapp-v2 to survive, got %v", names)
	}

	origin.GoOffline()
	resp, body := get(t, e, "/static/index.html")
	if resp.Header.Get(proxy.CacheStatusHeader) != "fallback" || body != "<html>FiadoApp v2</html>" {
		t.Fatalf("expected v2 cached copy, got %q %q", resp.Header.Get(proxy.CacheStatusHeader), body)
	}

	_, metrics := get(t, e, "/metrics")
	if !strings.Contains(metrics, `fiado_cache_active_info{cache_name="fiadoapp-v2"} 1`) {
		t.Fatalf("expected v2 active metric, got:\n%s", metrics)
	}
	if !strings.Contains(metrics, `fiado_cache_stale_stores_total{result="deleted"} 1`) {
		t.Fatalf("expected stale store metric, got:\n%s", metrics)
	}
}

func TestHealthEndpoints(t *testing.T) {
	origin := testutil.StartOrigin(t)
	cfg := baseConfig(origin.URL, "fiadoapp-v1")
	cfg.GRPCHealthAddr = "127.0.0.1:0"
	e, _ := startEdge(t, cfg)

	resp, body := get(t, e, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
	var status map[string]any
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if status["cache_name"] != "fiadoapp-v1" || status["phase"] != worker.PhaseActivated.String() {
		t.Fatalf("unexpected healthz %v", status)
	}

	conn, err := grpc.NewClient(e.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial grpc: %v", err)
	}
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	check, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: health.ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if check.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", check.GetStatus())
	}
}

func TestSQLiteCacheSurvivesRestart(t *testing.T) {
	origin := testutil.StartOrigin(t)
	cfg := baseConfig(origin.URL, "fiadoapp-v1")
	cfg.Storage = config.StorageConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "cache.db")}

	first, _ := startEdge(t, cfg)
	if err := first.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	origin.GoOffline()
	second, _ := startEdge(t, cfg)

	resp, body := get(t, second, "/static/index.html")
	if resp.StatusCode != http.StatusOK || resp.Header.Get(proxy.CacheStatusHeader) != "fallback" {
		t.Fatalf("expected persisted fallback, got %d %q", resp.StatusCode, resp.Header.Get(proxy.CacheStatusHeader))
	}
	if body != "<html>FiadoApp</html>" {
		t.Fatalf("unexpected persisted body %q", body)
	}
}

func TestShutdownDrainsInflightRequests(t *testing.T) {
	origin := testutil.StartOrigin(t)
	cfg := baseConfig(origin.URL, "fiadoapp-v1")
	cfg.Worker.StaticAssets = []string{}

	block := make(chan struct{})
	started := make(chan struct{})
	slow := httpTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			close(started)
			<-block
		}
		w.WriteHeader(http.StatusOK)
	})
	cfg.OriginURL = slow
	e, _ := startEdge(t, cfg)

	responseErr := make(chan error, 1)
	go func() {
		client := &http.Client{Timeout: 3 * time.Second}
		resp, err := client.Get("http://" + e.Server.HTTPAddr + "/slow")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err = fmt.Errorf("status %d", resp.StatusCode)
			}
		}
		responseErr <- err
	}()

	<-started
	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- e.Server.Shutdown() }()

	time.Sleep(50 * time.Millisecond)
	close(block)

	select {
	case err := <-responseErr:
		if err != nil {
			t.Fatalf("inflight request failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for inflight request")
	}
	select {
	case err := <-shutdownErr:
		if err != nil {
			t.Fatalf("shutdown error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("shutdown did not complete")
	}
}
