// Package health reports whether the worker controls fetches, over the
// standard gRPC health protocol and as a JSON endpoint.
package health

import (
	"sync"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"fiado_cache/internal/worker"
)

// ServiceName is SERVING only while a generation is activated.
const ServiceName = "fiado.cache.Worker"

type Reporter struct {
	server *grpchealth.Server
	mu     sync.Mutex
	active string
}

func NewReporter() *Reporter {
	server := grpchealth.NewServer()
	server.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Reporter{server: server}
}

// PhaseChanged implements worker.PhaseObserver.
func (r *Reporter) PhaseChanged(cacheName string, phase worker.Phase) {
	if phase != worker.PhaseActivated {
		return
	}
	r.mu.Lock()
	r.active = cacheName
	r.mu.Unlock()
	r.server.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

func (r *Reporter) ActiveCache() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Reporter) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, r.server)
}

// Shutdown flips every service to NOT_SERVING so clients drain before the
// gRPC server stops.
func (r *Reporter) Shutdown() {
	r.server.Shutdown()
}
