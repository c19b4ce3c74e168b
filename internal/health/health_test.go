package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"fiado_cache/internal/worker"
)

func startHealthServer(t *testing.T, reporter *Reporter) healthpb.HealthClient {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	reporter.Register(server)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return resp.GetStatus()
}

func TestReporterServesOnlyWhenActivated(t *testing.T) {
	reporter := NewReporter()
	client := startHealthServer(t, reporter)

	if status := checkStatus(t, client); status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before activation, got %s", status)
	}

	reporter.PhaseChanged("fiadoapp-v1", worker.PhaseInstalled)
	if status := checkStatus(t, client); status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after install, got %s", status)
	}

	reporter.PhaseChanged("fiadoapp-v1", worker.PhaseActivated)
	if status := checkStatus(t, client); status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING after activation, got %s", status)
	}

	reporter.PhaseChanged("fiadoapp-v1", worker.PhaseRedundant)
	reporter.PhaseChanged("fiadoapp-v2", worker.PhaseActivated)
	if status := checkStatus(t, client); status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING across a version bump, got %s", status)
	}
	if reporter.ActiveCache() != "fiadoapp-v2" {
		t.Fatalf("expected fiadoapp-v2 active, got %q", reporter.ActiveCache())
	}

	reporter.Shutdown()
	if status := checkStatus(t, client); status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %s", status)
	}
}

type staticStatus worker.Status

func (s staticStatus) Status() worker.Status { return worker.Status(s) }

func TestHandlerReportsPhase(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(staticStatus{Phase: worker.PhaseParsed}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before activation, got %d", rec.Code)
	}

	activatedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec = httptest.NewRecorder()
	Handler(staticStatus{
		CacheName:    "fiadoapp-v1",
		Phase:        worker.PhaseActivated,
		ActivatedAt:  activatedAt,
		Pending:      "fiadoapp-v2",
		PendingPhase: worker.PhaseInstalled,
	}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body statusBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Serving || body.CacheName != "fiadoapp-v1" || body.Phase != "activated" || body.PendingPhase != "installed" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.ActivatedAt == nil || !body.ActivatedAt.Equal(activatedAt) {
		t.Fatalf("unexpected activated_at %v", body.ActivatedAt)
	}
}
